package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/stordock/stordock/interfaces"
)

// Option keys recognized by backends. Each backend documents the keys it
// reads; unrecognized keys are ignored.
const (
	OptionRegion          = "region"
	OptionAuthEndpoint    = "auth_endpoint"
	OptionTenantID        = "tenant_id"
	OptionAPIKey          = "api_key"
	OptionPublic          = "public"
	OptionTempURLKey      = "temp_url_key"
	OptionDownloadURLBase = "download_url_base"
)

// Locator is the parsed form of a storage URI:
//
//	scheme://[username[:password]@]host[:port]/path?option=value
//
// Credential and option values are percent-decoded during parsing, so secrets
// containing reserved characters such as "/" must be percent-encoded in the
// URI. The host component names the container or bucket for object stores and
// the server host for file-transfer backends. A Locator is treated as
// immutable once parsed.
type Locator struct {
	Scheme      string
	Username    string
	Password    string
	HasPassword bool
	Host        string
	Port        string
	Path        string
	Options     map[string]string

	url *url.URL
}

// ParseLocator parses a storage URI into a Locator. A query key given more
// than once is rejected rather than silently picking one value.
func ParseLocator(raw string) (*Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocator, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme in %q", interfaces.ErrInvalidLocator, raw)
	}

	loc := &Locator{
		Scheme:  strings.ToLower(u.Scheme),
		Host:    u.Hostname(),
		Port:    u.Port(),
		Path:    u.Path,
		Options: make(map[string]string),
		url:     u,
	}

	if u.User != nil {
		loc.Username = u.User.Username()
		loc.Password, loc.HasPassword = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) > 1 {
			return nil, fmt.Errorf(
				"%w: query parameter %q given %d times", interfaces.ErrInvalidLocator, key, len(values))
		}
		loc.Options[key] = values[0]
	}

	return loc, nil
}

// Option returns the value of an option key, or "" when unset.
func (l *Locator) Option(key string) string {
	return l.Options[key]
}

// Key returns the locator path without its leading slash, the object key used
// by flat-namespace backends.
func (l *Locator) Key() string {
	return strings.TrimPrefix(l.Path, "/")
}

// ObjectName returns the final segment of the locator path.
func (l *Locator) ObjectName() string {
	trimmed := strings.TrimSuffix(l.Path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// SanitizedURI renders the locator with the userinfo and query stripped. The
// result never contains credentials, signing keys, or any other option value.
func (l *Locator) SanitizedURI() string {
	u := *l.url
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Sanitize parses a storage URI and returns its sanitized display form.
func Sanitize(uri string) (string, error) {
	loc, err := ParseLocator(uri)
	if err != nil {
		return "", err
	}
	return loc.SanitizedURI(), nil
}
