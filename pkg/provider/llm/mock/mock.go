// Package mock provides a test double for llm.Provider that records every
// arbitration request.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "merged"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voicecli/pkg/provider/llm"
)

// CompleteCall is one recorded invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider returns CompleteResponse and CompleteErr, or delegates to
// CompleteFunc when set. A zero Provider answers (nil, nil), which callers
// must treat as an empty answer.
type Provider struct {
	mu sync.Mutex

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	CompleteFunc     func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and answers.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Calls returns a copy of the recorded calls in order.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
