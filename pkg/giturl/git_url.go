// Package giturl resolves a user-supplied remote URL into a stable
// RemoteIdentity and, from there, the on-disk PathTriple the cache uses to
// store a mirror and its checkouts.
package giturl

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// hostAliases maps a URL's host component onto the closed set of host tags
// the cache understands. The set starts at {github} and is extended here,
// not by callers, per the identity's "closed set" invariant.
var hostAliases = map[string]string{
	"github.com": "github",
}

var (
	// user@host.xz:owner/name[.git]
	scpURLRgx = regexp.MustCompile(`^(?P<user>[\w\-.]+)@(?P<host>([\w\-]+\.)+[\w\-]+(:\d+)?):(?P<owner>([\w\-.]+/)*[\w\-.]+)/(?P<name>[\w\-.]+?)(?P<dotgit>\.git)?/*$`)

	// scheme://[user@]host[:port]/owner/name[.git][/]
	// covers https, http, git, git+https, git+ssh and ssh.
	schemeURLRgx = regexp.MustCompile(`^(?P<scheme>https|http|git\+https|git\+ssh|git|ssh)://((?P<user>[\w\-.]+)@)?(?P<host>([\w\-]+\.)+[\w\-]+(:\d+)?)/(?P<owner>([\w\-.]+/)*[\w\-.]+)/(?P<name>[\w\-.]+?)(?P<dotgit>\.git)?/*$`)

	// file:///path/to/repo.git — explicitly rejected, matched only to
	// give callers a precise error instead of falling through to
	// "unsupported shape".
	localURLRgx = regexp.MustCompile(`^file://`)

	// bare host/owner/name[.git]
	bareURLRgx = regexp.MustCompile(`^(?P<host>([\w\-]+\.)+[\w\-]+)/(?P<owner>([\w\-.]+/)*[\w\-.]+)/(?P<name>[\w\-.]+?)(?P<dotgit>\.git)?/*$`)
)

// RemoteIdentity is the stable, bit-exact identity a remote URL resolves to
// regardless of which accepted shape it was written in.
type RemoteIdentity struct {
	Host  string // host tag, e.g. "github"
	Owner string
	Name  string // trailing ".git" and slashes stripped; case preserved
}

// String renders the identity as "host/owner/name", used for logging and
// as the cache key's textual form.
func (id RemoteIdentity) String() string {
	return id.Host + "/" + id.Owner + "/" + id.Name
}

// Equals reports whether two identities refer to the same cache entry.
func (id RemoteIdentity) Equals(other RemoteIdentity) bool {
	return id.Host == other.Host && id.Owner == other.Owner && id.Name == other.Name
}

// ParseURL parses a raw remote URL into a RemoteIdentity. Accepted shapes:
// https://, http://, git://, git+https://, git+ssh://, ssh://[user@]host[:port]/…,
// user@host:owner/name[.git], and bare host/owner/name. file:// and any host
// outside the closed set are rejected.
func ParseURL(rawURL string) (RemoteIdentity, error) {
	trimmed := strings.TrimSpace(rawURL)

	if localURLRgx.MatchString(trimmed) {
		return RemoteIdentity{}, fmt.Errorf("giturl: local file:// remotes are not supported: %q", rawURL)
	}

	var host, owner, name string

	switch {
	case scpURLRgx.MatchString(trimmed):
		m := scpURLRgx.FindStringSubmatch(trimmed)
		host = m[scpURLRgx.SubexpIndex("host")]
		owner = m[scpURLRgx.SubexpIndex("owner")]
		name = m[scpURLRgx.SubexpIndex("name")]
	case schemeURLRgx.MatchString(trimmed):
		m := schemeURLRgx.FindStringSubmatch(trimmed)
		host = m[schemeURLRgx.SubexpIndex("host")]
		owner = m[schemeURLRgx.SubexpIndex("owner")]
		name = m[schemeURLRgx.SubexpIndex("name")]
	case bareURLRgx.MatchString(trimmed):
		m := bareURLRgx.FindStringSubmatch(trimmed)
		host = m[bareURLRgx.SubexpIndex("host")]
		owner = m[bareURLRgx.SubexpIndex("owner")]
		name = m[bareURLRgx.SubexpIndex("name")]
	default:
		return RemoteIdentity{}, fmt.Errorf(
			"giturl: %q is not a supported remote URL shape (want https://, http://, git://, git+https://, git+ssh://, ssh://, user@host:owner/name or host/owner/name)",
			rawURL)
	}

	host = stripPort(host)
	hostTag, ok := hostAliases[strings.ToLower(host)]
	if !ok {
		return RemoteIdentity{}, fmt.Errorf("giturl: host %q is not supported", host)
	}

	owner = strings.Trim(owner, "/")
	name = strings.TrimSuffix(strings.Trim(name, "/"), ".git")

	if owner == "" {
		return RemoteIdentity{}, fmt.Errorf("giturl: %q has an empty owner segment", rawURL)
	}
	if name == "" {
		return RemoteIdentity{}, fmt.Errorf("giturl: %q has an empty repository name", rawURL)
	}

	return RemoteIdentity{Host: hostTag, Owner: owner, Name: name}, nil
}

func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// Rebuild renders a canonical https:// URL for an identity. Used by the I6
// idempotence check (parse_url(rebuild(parse_url(x))) == parse_url(x)) and
// anywhere the cache needs to print back a normalized remote.
func Rebuild(id RemoteIdentity) string {
	return fmt.Sprintf("https://%s/%s/%s", hostFromTag(id.Host), id.Owner, id.Name)
}

func hostFromTag(tag string) string {
	for host, t := range hostAliases {
		if t == tag {
			return host
		}
	}
	return tag
}

// PathTriple is the deterministic set of on-disk paths derived from a
// RemoteIdentity. Computing it never touches the filesystem.
type PathTriple struct {
	MirrorPath      string
	ROCheckoutPath  string
	ModCheckoutPath string
}

// ModCheckoutDir is the compatibility constant under which modifiable
// checkouts are placed. It is a historical artifact of the on-disk layout
// this cache is compatible with and must never be hardcoded at call sites.
const ModCheckoutDir = "mithro"

// Paths computes the PathTriple for an identity given the configured cache
// and checkout roots. Pure function: no filesystem access.
func Paths(cacheRoot, checkoutRoot string, id RemoteIdentity) PathTriple {
	return PathTriple{
		MirrorPath:      filepath.Join(cacheRoot, id.Host, id.Owner, id.Name),
		ROCheckoutPath:  filepath.Join(checkoutRoot, id.Owner, id.Name),
		ModCheckoutPath: filepath.Join(checkoutRoot, ModCheckoutDir, id.Owner+"-"+id.Name),
	}
}
