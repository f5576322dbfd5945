package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

// Compress gzips text. The header carries no timestamp or name, so equal
// text always yields equal bytes; exact-duplicate pruning relies on that.
func Compress(text string) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write([]byte(text)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty content: %w", casierr.ErrCorrupt)
	}
	zr, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open gzip: %v: %w", err, casierr.ErrCorrupt)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("read gzip: %v: %w", err, casierr.ErrCorrupt)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty text: %w", casierr.ErrCorrupt)
	}
	return string(raw), nil
}
