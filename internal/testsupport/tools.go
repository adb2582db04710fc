package testsupport

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrToolFailed is returned by fake tools configured to fail.
var ErrToolFailed = errors.New("fake tool failed")

// FakeTranscoder stands in for ffmpeg. It writes its payload to the last
// argument, which is where the converters place the output path.
type FakeTranscoder struct {
	// Payload is written to the output path. Nil writes a valid GIF.
	Payload []byte
	// Fail makes every run return Output and ErrToolFailed without writing.
	Fail bool
	// Output is returned as tool diagnostics.
	Output []byte
	// Delay holds each run before it writes, so concurrent callers overlap.
	Delay time.Duration

	calls atomic.Int64
	mu    sync.Mutex
	args  [][]string
}

// Run implements the webm tool runner contract.
func (f *FakeTranscoder) Run(ctx context.Context, name string, args []string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.args = append(f.args, append([]string{name}, args...))
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return f.Output, ctx.Err()
		case <-timer.C:
		}
	}
	if f.Fail {
		return f.Output, ErrToolFailed
	}
	if len(args) == 0 {
		return f.Output, errors.New("fake transcoder: no output path")
	}
	payload := f.Payload
	if payload == nil {
		payload = GIFBytes()
	}
	if err := os.WriteFile(args[len(args)-1], payload, 0o644); err != nil {
		return f.Output, err
	}
	return f.Output, nil
}

// Calls returns how many times the tool ran.
func (f *FakeTranscoder) Calls() int {
	return int(f.calls.Load())
}

// LastArgs returns the command line of the most recent run, name first.
func (f *FakeTranscoder) LastArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.args) == 0 {
		return nil
	}
	return append([]string(nil), f.args[len(f.args)-1]...)
}

// FakeRenderer stands in for the vector renderer.
type FakeRenderer struct {
	// Payload is returned as the rendered GIF. Nil returns a valid GIF.
	Payload []byte
	// Err is returned instead of a payload when set.
	Err error
	// Delay holds each render so concurrent callers overlap.
	Delay time.Duration

	calls    atomic.Int64
	mu       sync.Mutex
	lastDoc  []byte
	lastSize [2]int
}

// Render implements the tgs renderer contract.
func (f *FakeRenderer) Render(ctx context.Context, document []byte, width, height int) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastDoc = append([]byte(nil), document...)
	f.lastSize = [2]int{width, height}
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Payload != nil {
		return append([]byte(nil), f.Payload...), nil
	}
	return GIFBytes(), nil
}

// Calls returns how many times the renderer ran.
func (f *FakeRenderer) Calls() int {
	return int(f.calls.Load())
}

// LastDocument returns the decompressed document of the most recent render
// and the requested dimensions.
func (f *FakeRenderer) LastDocument() ([]byte, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.lastDoc...), f.lastSize[0], f.lastSize[1]
}
