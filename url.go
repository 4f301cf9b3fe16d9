package gemini

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultPort is the default Gemini/Titan port used when a request URL
// omits one (spec §3, §4.2).
const DefaultPort = 1965

// URL is a parsed and validated Gemini or Titan request URL (spec §3).
//
// Unlike net/url.URL, a gemini.URL is guaranteed (once successfully
// parsed by ParseURL) to have no userinfo, no fragment, an absolute,
// canonicalized path, and a scheme of "gemini" or "titan".
type URL struct {
	Scheme string // "gemini" or "titan"
	Host   string // lowercased, IDN-decoded
	Port   int    // defaults to DefaultPort
	Path   string // absolute, percent-decoded, canonicalized

	RawQuery string // raw, still percent-encoded; valid only if HasQuery
	HasQuery bool

	// Titan-only parameters extracted from the path's semicolon-delimited
	// parameter segment (spec §4.2, §6.2). Zero values when Scheme != "titan".
	Size     int64
	HasSize  bool
	Mime     string
	Token    string
	HasToken bool
}

// ParseURL parses and validates raw as a Gemini or Titan request URL.
//
// raw must not include the trailing CRLF; callers are responsible for
// enforcing the 1024-byte request-line length limit (spec §4.2) before
// calling ParseURL, since that limit applies to the whole request line,
// not just the URL.
func ParseURL(raw string) (*URL, error) {
	if strings.ContainsAny(raw, "\r\n") {
		return nil, fmt.Errorf("%w: embedded CR/LF", ErrInvalidURL)
	}
	// net/url has no notion of "fragment forbidden"; reject unconditionally
	// and before parsing, since a bare trailing '#' with no content still
	// makes u.Fragment == "" after Parse.
	if strings.Contains(raw, "#") {
		return nil, fmt.Errorf("%w: fragment not allowed", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: userinfo not allowed", ErrInvalidURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "gemini" && scheme != "titan" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidURL)
	}
	host, err = decodeHostname(host)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hostname: %v", ErrInvalidURL, err)
	}

	port := DefaultPort
	if ps := u.Port(); ps != "" {
		port, err = strconv.Atoi(ps)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, ps)
		}
	}

	result := &URL{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		RawQuery: u.RawQuery,
		HasQuery: u.ForceQuery || u.RawQuery != "",
	}

	rawPath := u.EscapedPath()
	if scheme == "titan" {
		filePath, params, err := splitTitanParams(rawPath)
		if err != nil {
			return nil, err
		}
		rawPath = filePath
		if err := applyTitanParams(result, params); err != nil {
			return nil, err
		}
		if !result.HasMime() {
			result.Mime = "text/gemini"
		}
	}

	decodedPath, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid percent-encoding in path", ErrInvalidURL)
	}
	result.Path = canonicalPath(decodedPath)

	return result, nil
}

// HasMime reports whether a Mime parameter was explicitly present on a
// Titan URL; for a Titan URL it is always true after ParseURL, since the
// default "text/gemini" is filled in, but is useful prior to that fill-in.
func (u *URL) HasMime() bool { return u.Mime != "" }

// decodeHostname decodes a punycode ("xn--...") hostname label to its
// Unicode form, matching spec §3's "host (lowercased, IDN-decoded)".
// IPv6 literals and plain ASCII hostnames are returned unchanged.
func decodeHostname(host string) (string, error) {
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	if !strings.Contains(host, "xn--") {
		return host, nil
	}
	decoded, err := idna.ToUnicode(host)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

// ASCIIHost returns the punycode-encoded (always-ASCII) form of Host,
// suitable for TLS SNI and dialing.
func (u *URL) ASCIIHost() (string, error) {
	return punycodeHostname(u.Host)
}

// Hostport returns "host:port" using the ASCII form of Host, suitable
// for net.Dial / tls.Dial.
func (u *URL) Hostport() (string, error) {
	h, err := u.ASCIIHost()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", h, u.Port), nil
}

// String reassembles u into its wire representation.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != DefaultPort {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	b.WriteString(u.Path)
	if u.Scheme == "titan" {
		fmt.Fprintf(&b, ";size=%d", u.Size)
		if u.Mime != "" {
			fmt.Fprintf(&b, ";mime=%s", u.Mime)
		}
		if u.HasToken {
			fmt.Fprintf(&b, ";token=%s", u.Token)
		}
	}
	if u.HasQuery {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// canonicalPath percent-decodes are assumed already applied; canonicalPath
// resolves "." and ".." segments, clamping at the root so that a path can
// never escape above "/" (spec §4.2, §8). This is the same clamping
// behavior path.Clean already provides for rooted paths; it is kept as a
// named function so the "never produce a leading .." invariant is
// documented at the call site; ServeMux.Handler (mux.go) calls it too
// for mux lookups.
func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	// Restore a trailing slash that path.Clean strips, except for "/" itself.
	if p[len(p)-1] == '/' && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// splitTitanParams splits an (still percent-encoded) Titan path into the
// file-path segment and its ";key=value" parameters (spec §4.2, §6.2).
func splitTitanParams(escapedPath string) (filePath string, params map[string]string, err error) {
	idx := strings.IndexByte(escapedPath, ';')
	if idx < 0 {
		return escapedPath, nil, nil
	}
	filePath = escapedPath[:idx]
	params = make(map[string]string)
	for _, part := range strings.Split(escapedPath[idx+1:], ";") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := kv[0]
		var rawValue string
		if len(kv) == 2 {
			rawValue = kv[1]
		}
		value, derr := url.PathUnescape(rawValue)
		if derr != nil {
			return "", nil, fmt.Errorf("%w: invalid percent-encoding in parameter %q", ErrInvalidURL, key)
		}
		params[key] = value
	}
	return filePath, params, nil
}

func applyTitanParams(u *URL, params map[string]string) error {
	if size, ok := params["size"]; ok {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid titan size parameter", ErrInvalidURL)
		}
		u.Size = n
		u.HasSize = true
	}
	if mime, ok := params["mime"]; ok {
		u.Mime = mime
	}
	if token, ok := params["token"]; ok {
		u.Token = token
		u.HasToken = true
	}
	return nil
}
