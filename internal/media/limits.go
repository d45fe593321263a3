package media

import (
	"fmt"
	"io"
)

const (
	// MaxAssetBytes is the default max accepted attachment size.
	MaxAssetBytes int64 = 15 * 1024 * 1024
)

// CheckSize rejects a platform-reported size above maxBytes. Unknown sizes
// (<= 0) pass and are enforced while reading.
func CheckSize(size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes, max %d bytes", ErrAssetTooLarge, size, maxBytes)
	}
	return nil
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}

// MaxMB renders maxBytes as whole megabytes for user-facing messages.
func MaxMB(maxBytes int64) int64 {
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	return maxBytes / (1024 * 1024)
}
