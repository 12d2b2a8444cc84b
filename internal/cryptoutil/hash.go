package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// SHA256Hex computes the SHA-256 hash of the input data and returns it as a hex string
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashingReader computes the SHA-256 of everything read through it.
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

// SumHex returns the hex digest of the bytes read so far.
func (hr *HashingReader) SumHex() string { return hex.EncodeToString(hr.h.Sum(nil)) }

// BytesRead returns how many bytes have passed through the reader.
func (hr *HashingReader) BytesRead() int64 { return hr.n }

// SHA256ReaderHex streams r to completion and returns its hex digest and length.
func SHA256ReaderHex(r io.Reader) (string, int64, error) {
	hr := NewHashingReader(r)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return "", hr.n, err
	}
	return hr.SumHex(), hr.n, nil
}
