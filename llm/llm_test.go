package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name string
	out  string
	err  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Call(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	return f.out, f.err
}

func TestChainReturnsFirstNonEmptyResult(t *testing.T) {
	c := &Chain{Providers: []Provider{
		&fakeProvider{name: "a", out: ""},
		&fakeProvider{name: "b", out: "hello"},
		&fakeProvider{name: "c", out: "should not reach"},
	}}
	out, err := c.Call(context.Background(), "prompt", CallOptions{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("Call() = %q, want %q", out, "hello")
	}
}

func TestChainSkipsErroringProviders(t *testing.T) {
	c := &Chain{Providers: []Provider{
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", out: "recovered"},
	}}
	out, err := c.Call(context.Background(), "prompt", CallOptions{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out != "recovered" {
		t.Errorf("Call() = %q, want %q", out, "recovered")
	}
}

func TestChainExhaustedReturnsEmptyNotError(t *testing.T) {
	c := &Chain{Providers: []Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("also down")},
	}}
	out, err := c.Call(context.Background(), "prompt", CallOptions{})
	if err != nil {
		t.Fatalf("Call() on exhausted chain must return nil error, got %v", err)
	}
	if out != "" {
		t.Errorf("Call() on exhausted chain = %q, want empty string", out)
	}
}

func TestChainInvokesOnWarnForEachFailure(t *testing.T) {
	var warned []string
	c := &Chain{
		Providers: []Provider{
			&fakeProvider{name: "a", err: errors.New("down")},
			&fakeProvider{name: "b", out: "ok"},
		},
		OnWarn: func(provider, msg string) { warned = append(warned, provider) },
	}
	if _, err := c.Call(context.Background(), "prompt", CallOptions{}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(warned) != 1 || warned[0] != "a" {
		t.Errorf("OnWarn calls = %v, want [a]", warned)
	}
}
