package models

import (
	"net/url"
	"regexp"
	"strings"
)

// ItemPathPrefix is the path of the item detail endpoint. A link pointing at it
// is treated as a clone request for the referenced item.
const ItemPathPrefix = "/api/v1/collections/items/"

var itemPathRegex = regexp.MustCompile(`^/api/v1/collections/items/([A-Za-z0-9-]+)/?$`)

var (
	ErrInvalidLinkURL     = &ValidationError{Field: "link_url", Message: "link_url is not a valid URL"}
	ErrUnsupportedScheme  = &ValidationError{Field: "link_url", Message: "link_url must use http or https"}
	ErrInvalidImageURL    = &ValidationError{Field: "image_url", Message: "image_url must be an http or https URL"}
	allowedLinkSchemes    = map[string]bool{"http": true, "https": true}
	defaultPortsForScheme = map[string]string{"http": "80", "https": "443"}
)

// parseAllowed parses raw and checks it against the scheme allow-list
func parseAllowed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrInvalidLinkURL
	}
	if !allowedLinkSchemes[strings.ToLower(u.Scheme)] {
		return nil, ErrUnsupportedScheme
	}
	if u.Hostname() == "" {
		return nil, ErrInvalidLinkURL
	}
	return u, nil
}

// NormalizeLink validates a link and returns the canonical form used as the
// dedup key: lowercase scheme and host, no default port, no fragment, and a
// non-empty path.
func NormalizeLink(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrItemLinkRequired
	}

	u, err := parseAllowed(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPortsForScheme[u.Scheme] {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return u.String(), nil
}

// IsWellFormedLink reports whether a stored link can be handed to fetchers
func IsWellFormedLink(raw string) bool {
	_, err := parseAllowed(raw)
	return err == nil
}

// ValidateImageURL checks an explicit image URL supplied at creation time
func ValidateImageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if _, err := parseAllowed(raw); err != nil {
		return "", ErrInvalidImageURL
	}
	return raw, nil
}

// ParseItemReference returns the referenced item id when raw points at the
// item detail endpoint served under baseURL. Links to the same path on any
// other origin are ordinary links.
func ParseItemReference(raw, baseURL string) (string, bool) {
	u, err := parseAllowed(raw)
	if err != nil {
		return "", false
	}
	base, err := parseAllowed(baseURL)
	if err != nil {
		return "", false
	}
	if originOf(u) != originOf(base) {
		return "", false
	}

	path := strings.TrimPrefix(u.Path, strings.TrimRight(base.Path, "/"))
	m := itemPathRegex.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// originOf returns scheme://host[:port] with default ports dropped
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortsForScheme[scheme] {
		host = host + ":" + port
	}
	return scheme + "://" + host
}

// ItemURL builds the canonical detail URL of an item
func ItemURL(baseURL, itemID string) string {
	return strings.TrimRight(baseURL, "/") + ItemPathPrefix + itemID
}
