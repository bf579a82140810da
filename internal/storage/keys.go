// Package storage holds helpers shared by the blob and record store backends.
package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScreenshotKey builds the object key for a session's capture.
func ScreenshotKey(prefix, sessionID string, at time.Time) string {
	at = at.UTC()
	key := fmt.Sprintf("screenshots/%04d/%02d/%02d/%s.jpg", at.Year(), int(at.Month()), at.Day(), sessionID)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// SplitRef parses a scheme://bucket/key reference. It returns ok=false when the
// scheme does not match or the reference has no key.
func SplitRef(ref, scheme string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(ref, scheme+"://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// JoinPublicURL appends an object key to a public base URL.
func JoinPublicURL(base, key string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("public base url %q must be absolute", base)
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/"), nil
}
