// Package provider abstracts the chat-completion backends.
package provider

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/ashureev/careerbot/internal/domain"
)

// Provider names accepted in the model request field.
const (
	ChatGPT  = "chatgpt"
	DeepSeek = "deepseek"
	MockName = "mock"
)

// FunctionCall is a structured function invocation requested by the model.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Completion is the result of a blocking request. Call is set when the
// model chose to invoke a function instead of, or in addition to, replying.
type Completion struct {
	Text string
	Call *FunctionCall
}

// Fragment is one streamed delta. FunctionName is set once per call;
// FunctionArgs arrive in pieces and must be concatenated.
type Fragment struct {
	Text         string
	FunctionName string
	FunctionArgs string
}

// Provider produces completions for a transcript.
type Provider interface {
	Name() string
	Complete(ctx context.Context, turns []domain.Turn) (Completion, error)
	Stream(ctx context.Context, turns []domain.Turn) iter.Seq2[Fragment, error]
}

// Registry resolves a requested model name to a provider.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry returns a registry whose unknown or empty names resolve to fallback.
func NewRegistry(fallback string, providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers)), fallback: fallback}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	if _, ok := r.providers[fallback]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", fallback)
	}
	return r, nil
}

// Resolve returns the provider registered under name, or the default.
func (r *Registry) Resolve(name string) Provider {
	if p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return r.providers[r.fallback]
}

// Names lists the registered providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
