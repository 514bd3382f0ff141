// Package llm is the prompt-in, JSON-out adapter used by the status
// analyzer, commit-message generator, PR description generator and
// conflict resolver. No provider error ever escapes to those callers: a
// fully exhausted fallback chain returns ("", nil), not a Go error.
package llm

import "context"

// CallOptions bounds and shapes a single call.
type CallOptions struct {
	JSON      bool
	MaxTokens int
	TimeoutMs int
}

// Provider is a single backend capable of turning a prompt into text.
type Provider interface {
	Name() string
	Call(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

// Chain tries each Provider in order until one returns non-empty output,
// logging every failure at warn via the supplied sink rather than
// propagating it (spec.md §4.5).
type Chain struct {
	Providers []Provider
	OnWarn    func(provider, msg string)
}

// Call runs the fallback chain. Each provider bounds its own call by
// opts.TimeoutMs (30s when zero); callers that need early cancellation
// (spec.md's AbortSignal) pass a cancellable child context and keep the
// CancelFunc.
func (c *Chain) Call(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	for _, p := range c.Providers {
		out, err := p.Call(ctx, prompt, opts)
		if err != nil {
			c.warn(p.Name(), err.Error())
			continue
		}
		if out != "" {
			return out, nil
		}
	}
	return "", nil
}

func (c *Chain) warn(provider, msg string) {
	if c.OnWarn != nil {
		c.OnWarn(provider, msg)
	}
}
