// Package fingerprint computes a stable content identity for source files.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// blockSize bounds memory use while hashing: files are streamed in 1 MiB
// blocks regardless of size.
const blockSize = 1 << 20

// Fingerprint identifies one version of a file. Two files are unchanged iff
// all three fields match exactly.
type Fingerprint struct {
	SHA256     string
	ModifiedNs int64
	SizeBytes  int64
}

// Compute returns the fingerprint of the file at path. An unreadable file
// surfaces the I/O error to the caller.
func Compute(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat file: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Fingerprint{}, fmt.Errorf("hash file: %w", err)
	}
	return Fingerprint{
		SHA256:     hex.EncodeToString(h.Sum(nil)),
		ModifiedNs: info.ModTime().UnixNano(),
		SizeBytes:  info.Size(),
	}, nil
}

// Equal reports whether f matches the stored triple.
func (f Fingerprint) Equal(sha256 string, modifiedNs, sizeBytes int64) bool {
	return f.SHA256 == sha256 && f.ModifiedNs == modifiedNs && f.SizeBytes == sizeBytes
}
