package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// AppAuth configures GitHub App installation-token authentication, used
// instead of a static bearer token when set.
type AppAuth struct {
	AppID          string
	InstallationID string
	PrivateKeyPath string
}

// Client is a minimal GitHub REST client: fork, get_repo, set_private,
// bearer-authenticated from a static token or a GitHub App installation
// token cached until 10 minutes before expiry.
type Client struct {
	BaseURL string
	Token   string
	App     *AppAuth
	HTTP    *http.Client

	cachedToken     string
	cachedExpiresAt time.Time
}

// New returns a Client authenticated by a static bearer token (e.g.
// $GITHUB_TOKEN). Use NewWithAppAuth for GitHub App authentication.
func New(token string) *Client {
	return &Client{BaseURL: defaultBaseURL, Token: token, HTTP: http.DefaultClient}
}

// NewWithAppAuth returns a Client authenticated via GitHub App
// installation tokens.
func NewWithAppAuth(app AppAuth) *Client {
	return &Client{BaseURL: defaultBaseURL, App: &app, HTTP: http.DefaultClient}
}

// Repo is the subset of a GitHub repository's fields the strategy
// detector and fork policy consult.
type Repo struct {
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	Fork          bool   `json:"fork"`
	ForksCount    int    `json:"forks_count"`
	DefaultBranch string `json:"default_branch"`
	Size          int64  `json:"size"` // KB, per GitHub's API
	CloneURL      string `json:"clone_url"`
}

// ForkResult is fork's response.
type ForkResult struct {
	URL            string `json:"html_url"`
	Private        bool   `json:"private"`
	AlreadyExisted bool   `json:"-"`
}

// GetRepo implements get_repo(owner, name).
func (c *Client) GetRepo(ctx context.Context, owner, name string) (Repo, error) {
	var repo Repo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, &repo)
	return repo, err
}

// Fork implements fork(owner, name, org?). If org is empty the fork is
// created under the authenticated account.
func (c *Client) Fork(ctx context.Context, owner, name, org string) (ForkResult, error) {
	body := map[string]string{}
	if org != "" {
		body["organization"] = org
	}

	var repo Repo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/forks", owner, name), body, &repo)
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.StatusCode == http.StatusAccepted {
			// fork creation is asynchronous; GitHub still returns the repo body.
		} else {
			return ForkResult{}, err
		}
	}

	return ForkResult{URL: repo.CloneURL, Private: repo.Private}, nil
}

// SetPrivate implements set_private(owner, name, bool).
func (c *Client) SetPrivate(ctx context.Context, owner, name string, private bool) error {
	body := map[string]bool{"private": private}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/%s", owner, name), body, nil)
}

// APIError carries the HTTP status and body of a non-2xx GitHub response,
// letting callers distinguish authentication/not-found/forbidden/network
// failures.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("githubapi: status %d: %s", e.StatusCode, e.Body)
}

func asAPIError(err error, target **APIError) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var reader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("githubapi: marshal request: %w", err)
		}
		reader = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("githubapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("githubapi: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("githubapi: decode response: %w", err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// bearerToken returns the static token, or a cached/refreshed GitHub App
// installation token when AppAuth is configured.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.App == nil {
		return c.Token, nil
	}

	if c.cachedExpiresAt.After(time.Now().UTC().Add(10 * time.Minute)) {
		return c.cachedToken, nil
	}

	token, err := AppInstallationToken(ctx, c.App.AppID, c.App.InstallationID, c.App.PrivateKeyPath,
		AppTokenPermissions{Permissions: map[string]string{"contents": "read"}})
	if err != nil {
		return "", fmt.Errorf("githubapi: refresh app token: %w", err)
	}
	c.cachedToken = token.Token
	c.cachedExpiresAt = token.ExpiresAt
	return c.cachedToken, nil
}
