package tgs

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotGzip means the payload is not a gzip stream.
	ErrNotGzip = errors.New("tgs: payload is not gzip-compressed")
	// ErrDocumentTooLarge means the decompressed document exceeds the limit.
	ErrDocumentTooLarge = errors.New("tgs: decompressed document exceeds limit")
	// ErrNotLottie means the decompressed payload is not a JSON document.
	ErrNotLottie = errors.New("tgs: document is not valid JSON")
)

// Decompress gunzips a TGS payload into its Lottie document. A limit <= 0
// disables the size ceiling.
func Decompress(payload []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotGzip, err)
	}
	defer zr.Close()

	reader := io.Reader(zr)
	if limit > 0 {
		reader = io.LimitReader(zr, limit+1)
	}
	document, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("tgs: decompress: %w", err)
	}
	if limit > 0 && int64(len(document)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrDocumentTooLarge, limit)
	}
	if !json.Valid(document) {
		return nil, ErrNotLottie
	}
	return document, nil
}
