// Package ai generates free-text replies through an ordered chain of
// chat-completion backends.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is the author of a prompt message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to a provider
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-independent generation request
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int

	// Intent is the classifier's label for the latest customer message
	Intent string
	// Service is the catalog service the conversation is about, if any
	Service string
}

// SystemText is System followed by the per-message context
func (r Request) SystemText() string {
	var sb strings.Builder
	sb.WriteString(r.System)
	if r.Intent != "" || r.Service != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Context for the latest customer message:")
		if r.Intent != "" {
			fmt.Fprintf(&sb, "\n- detected intent: %s", r.Intent)
		}
		if r.Service != "" {
			fmt.Fprintf(&sb, "\n- service discussed: %s", r.Service)
		}
	}
	return sb.String()
}

// Provider generates a reply for a request
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

var (
	// ErrNoProviders is returned by a chain with nothing configured
	ErrNoProviders = errors.New("ai: no providers configured")
	// ErrEmptyResponse is returned when a provider answers with no text
	ErrEmptyResponse = errors.New("ai: empty response")
)

// ProviderError records why one provider in a chain failed
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

// ChainError is returned when every provider in a chain failed
type ChainError struct {
	Failures []ProviderError
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("ai: all %d providers failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes each provider's error to errors.Is
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
