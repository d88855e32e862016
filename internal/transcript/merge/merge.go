// Package merge reconciles the transcripts of the two speech engines into one.
//
// The [Merger] short-circuits the trivial cases (an empty side, identical
// text) and otherwise asks an [llm.Provider] to pick and combine the best
// parts of both. Arbitration never fails: when the model errors out or
// answers with nothing usable, the engine B transcript is returned unchanged.
package merge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voicecli/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultTimeout     = 15 * time.Second
)

// systemPrompt labels the two inputs in engine order. The user turn carries
// one message per transcript, A first.
const systemPrompt = `You merge two speech-to-text transcripts of the same dictated audio into one accurate transcript.

Transcript 1 (Groq Whisper) arrives in the first user message.
Transcript 2 (Deepgram Nova) arrives in the second user message.

Rules:
- Both transcripts describe the same speech. Where they disagree, choose the wording that is most plausible in context.
- Whisper is usually stronger at punctuation and technical vocabulary; Nova is usually stronger at not inventing words in pauses.
- Never add content that appears in neither transcript, and never answer questions contained in the text.
- Keep the speaker's language. Do not translate, summarise or comment.

Respond with ONLY the merged transcript text, without quotes, labels or explanations.`

// Source tells which rule produced a merge result.
type Source string

const (
	SourceEmpty     Source = "empty"
	SourceA         Source = "engine_a"
	SourceB         Source = "engine_b"
	SourceIdentical Source = "identical"
	SourceLLM       Source = "llm"
	SourceFallback  Source = "fallback"
)

// Result is the outcome of [Merger.Resolve].
type Result struct {
	Text   string
	Source Source

	// Err holds the arbitration failure when Source is [SourceFallback].
	Err error
}

// Option is a functional option for configuring a [Merger].
type Option func(*Merger)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(m *Merger) {
		m.temperature = temp
	}
}

// WithTimeout bounds the arbitration call. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(m *Merger) {
		m.timeout = d
	}
}

// Merger arbitrates between two candidate transcripts. It is safe for
// concurrent use.
//
// The model is chosen when the [llm.Provider] is constructed, not per call.
type Merger struct {
	llm         llm.Provider
	temperature float64
	timeout     time.Duration
}

// New returns a [Merger] backed by provider.
func New(provider llm.Provider, opts ...Option) *Merger {
	m := &Merger{
		llm:         provider,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Merge returns the reconciled transcript of a (engine A) and b (engine B).
func (m *Merger) Merge(ctx context.Context, a, b string) string {
	return m.Resolve(ctx, a, b).Text
}

// Resolve is [Merger.Merge] with the rule that produced the text attached.
// At most one model call is made.
func (m *Merger) Resolve(ctx context.Context, a, b string) Result {
	switch {
	case a == "" && b == "":
		return Result{Source: SourceEmpty}
	case a == "":
		return Result{Text: b, Source: SourceB}
	case b == "":
		return Result{Text: a, Source: SourceA}
	case a == b:
		return Result{Text: a, Source: SourceIdentical}
	}

	text, err := m.arbitrate(ctx, a, b)
	if err != nil {
		slog.Warn("merge: arbitration failed, keeping engine B transcript", "err", err)
		return Result{Text: b, Source: SourceFallback, Err: err}
	}
	return Result{Text: text, Source: SourceLLM}
}

func (m *Merger) arbitrate(ctx context.Context, a, b string) (text string, err error) {
	if m.llm == nil {
		return "", errNoProvider
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  m.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: a},
			{Role: llm.RoleUser, Content: b},
		},
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errEmptyAnswer
	}
	if resp.Truncated() {
		return "", errTruncated
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", errEmptyAnswer
	}
	return out, nil
}
