// Package githubapi is the GitHub REST client collaborator: fork, repo
// lookup, and visibility changes, authenticated either by a plain bearer
// token or a short-lived GitHub App installation token.
package githubapi

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// AppTokenPermissions scopes a requested installation token, mirrored from
// the GitHub Apps access-token request body.
type AppTokenPermissions struct {
	Repositories []string          `json:"repositories"`
	Permissions  map[string]string `json:"permissions"`
}

// AppToken is a short-lived GitHub App installation token.
type AppToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AppInstallationToken signs a JWT with the app's private key and
// exchanges it for an installation access token.
func AppInstallationToken(ctx context.Context, appID, installationID, privateKeyPath string, perms AppTokenPermissions) (*AppToken, error) {
	privatePEMData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("githubapi: read app private key: %w", err)
	}

	block, _ := pem.Decode(privatePEMData)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("githubapi: failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("githubapi: parse app private key: %w", err)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: privateKey}, nil)
	if err != nil {
		return nil, fmt.Errorf("githubapi: new jwt signer: %w", err)
	}

	cl := jwt.Claims{
		Issuer:   appID,
		IssuedAt: jwt.NewNumericDate(time.Now().Add(-60 * time.Second)),
		Expiry:   jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}

	jwtToken, err := jwt.Signed(signer).Claims(cl).Serialize()
	if err != nil {
		return nil, fmt.Errorf("githubapi: serialize jwt: %w", err)
	}

	reqBody, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("githubapi: marshal token request: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", defaultBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("githubapi: build token request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("githubapi: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("githubapi: app token response status %d, body:%q", resp.StatusCode, body)
	}

	var token AppToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("githubapi: decode token response: %w", err)
	}
	return &token, nil
}
