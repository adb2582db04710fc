package sticker

import (
	"errors"
	"strings"
)

var (
	// ErrDownloadFailed covers unreachable sources, non-success responses and timeouts.
	ErrDownloadFailed = errors.New("download failed")
	// ErrConversionFailed means the external tool failed or produced no usable GIF.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrCacheWriteFailed means the finished GIF could not be placed in the cache.
	ErrCacheWriteFailed = errors.New("cache write failed")
	// ErrSweepFailed marks a file the guardian could not measure or delete.
	ErrSweepFailed = errors.New("sweep failed")
)

// maxOutputLen bounds the tool diagnostics carried on an Error.
const maxOutputLen = 4096

// Error is the typed failure returned by converters.
type Error struct {
	Code   error
	Key    Key
	Output string
	Err    error
}

// NewError builds an Error, trimming tool output to a bounded tail.
func NewError(code error, key Key, err error, output []byte) *Error {
	return &Error{
		Code:   code,
		Key:    key,
		Output: tailOutput(output),
		Err:    err,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Code != nil {
		b.WriteString(e.Code.Error())
	} else {
		b.WriteString("sticker error")
	}
	if e.Key != "" {
		b.WriteString(" [")
		b.WriteString(string(e.Key))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Output != "" {
		b.WriteString(": ")
		b.WriteString(e.Output)
	}
	return b.String()
}

// Unwrap exposes both the taxonomy code and the underlying cause.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Code != nil {
		out = append(out, e.Code)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// CodeOf returns the taxonomy code carried by err, or nil.
func CodeOf(err error) error {
	for _, code := range []error{ErrDownloadFailed, ErrConversionFailed, ErrCacheWriteFailed, ErrSweepFailed} {
		if errors.Is(err, code) {
			return code
		}
	}
	return nil
}

func tailOutput(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) <= maxOutputLen {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-maxOutputLen:]
}
