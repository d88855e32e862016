// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed a controlled transcript (or error) into code that runs
// speech engines and to inspect which requests it issued.
//
// Example:
//
//	p := &mock.Provider{Text: "hello world"}
//	text, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay runs before Transcribe returns; a non-nil result becomes the
	// returned error. Tests use it to hold a session mid-transcription.
	Delay func(ctx context.Context) error

	// Panic makes Transcribe panic with this value when non-nil.
	Panic any

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	text, err, delay, pv := p.Text, p.Err, p.Delay, p.Panic
	p.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return "", derr
		}
	}
	if pv != nil {
		panic(pv)
	}
	return text, err
}

// CallCount returns how many times Transcribe was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
