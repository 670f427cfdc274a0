package smbctx

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// shareURL is a parsed smb://host[:port]/share[/path] URL.
type shareURL struct {
	Host  string
	Port  int
	Share string
	Path  string // share-relative, backslash separated, no leading separator
}

// addr returns host:port for dialing.
func (u *shareURL) addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// key identifies the server/share pair a session is negotiated for.
func (u *shareURL) key() string {
	return strings.ToLower(u.addr()) + "/" + strings.ToLower(u.Share)
}

// parseShareURL parses an SMB URL. defaultPort is used when the URL carries
// no port.
func parseShareURL(raw string, defaultPort int) (*shareURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "smb" {
		return nil, fmt.Errorf("%w: invalid scheme %q (expected 'smb')", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	su := &shareURL{
		Host: u.Hostname(),
		Port: defaultPort,
	}

	if u.Port() != "" {
		port, err := strconv.Atoi(u.Port())
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, u.Port())
		}
		su.Port = port
	}

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: missing share", ErrInvalidURL)
	}
	su.Share = parts[0]

	if len(parts) == 2 && parts[1] != "" {
		if err := validatePath(parts[1]); err != nil {
			return nil, err
		}
		su.Path = toSMBPath(path.Clean("/" + parts[1]))
	}

	return su, nil
}

// makeURL builds smb://host:port/share/<root>/<name>.
func makeURL(host string, port int, share, root, name string) string {
	p := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if root != "" {
		p = path.Join("/", root, p)
	}

	return fmt.Sprintf("smb://%s/%s%s", net.JoinHostPort(host, strconv.Itoa(port)), share, p)
}

// validatePath validates that a path is safe and doesn't contain
// invalid characters or attempt path traversal outside the share.
func validatePath(p string) error {
	if p == "" {
		return ErrInvalidPath
	}

	// Check for null bytes
	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	normalized := strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean(normalized)

	// Path traversal check - ensure the clean path doesn't go above root
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") ||
		strings.Contains(cleaned, "/../") || strings.HasSuffix(cleaned, "/..") {
		return ErrInvalidPath
	}

	return nil
}

// toSMBPath converts a normalized Unix-style path to SMB path format.
// SMB paths use backslashes and don't have a leading slash.
func toSMBPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	return strings.ReplaceAll(p, "/", "\\")
}
