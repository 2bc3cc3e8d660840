package cache

import (
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-1 of a URL. It is used as a stable,
// filesystem-safe name for the URL's clone and timestamp.
func Digest(url string) string {
	sum := sha1.Sum([]byte(url)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
