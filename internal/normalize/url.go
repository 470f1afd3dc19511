package normalize

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL normalizes a listing URL for consistent ID generation
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	// Remove query parameters and fragment
	u.RawQuery = ""
	u.Fragment = ""

	// Ensure trailing slash consistency (remove it)
	u.Path = strings.TrimSuffix(u.Path, "/")

	// Force HTTPS
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)

	return u.String()
}

// ListingID derives the stable listing ID from a source URL
func ListingID(sourceURL string) string {
	hash := md5.Sum([]byte(NormalizeURL(sourceURL)))
	return fmt.Sprintf("%x", hash)
}
