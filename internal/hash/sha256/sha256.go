// Package sha256 fingerprints captured rasters.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Prefix tags digests with their algorithm in content records.
const Prefix = "sha256:"

// ErrEmpty is returned for an empty raster; a blank capture has no fingerprint.
var ErrEmpty = errors.New("hash: empty input")

// Hasher implements roast.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns "sha256:<hex digest>" for data.
func (*Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}
