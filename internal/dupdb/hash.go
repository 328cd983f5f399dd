package dupdb

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentHash is a 64-bit xxHash digest of a file's entire contents.
// It is not collision resistant; equal hashes are treated as equal content.
type ContentHash uint64

// HashBytes returns the ContentHash of data.
func HashBytes(data []byte) ContentHash {
	return ContentHash(xxhash.Sum64(data))
}

// HashReader streams r into the hasher and returns the digest.
func HashReader(r io.Reader) (ContentHash, error) {
	h := xxhash.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return 0, fmt.Errorf("hashing content: %w", err)
	}
	return ContentHash(h.Sum64()), nil
}

// ParseContentHash parses the decimal storage form produced by String.
func ParseContentHash(s string) (ContentHash, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing content hash %q: %w", s, err)
	}
	return ContentHash(v), nil
}

// String returns the decimal form used as the storage key.
func (h ContentHash) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Hex returns the fixed-width hex form used for display.
func (h ContentHash) Hex() string {
	return fmt.Sprintf("%016x", uint64(h))
}
