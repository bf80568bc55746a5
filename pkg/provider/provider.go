// Package provider implements the named JSON value sources/sinks that feed
// templates and queries: list, range, file (line/json/csv), and response
// providers, all built on top of pkg/channel.
package provider

import (
	"context"
	"fmt"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// AutoReturnPolicy governs what happens to a value drawn from a provider
// once the request it fed completes.
type AutoReturnPolicy int

const (
	// AutoReturnBlock retries until the value is accepted back into the
	// provider.
	AutoReturnBlock AutoReturnPolicy = iota
	// AutoReturnForce pushes the value back unconditionally, bypassing the
	// provider's limit.
	AutoReturnForce
	// AutoReturnIfNotFull drops the value silently if the provider is full.
	AutoReturnIfNotFull
	// AutoReturnNone means the provider never auto-returns (the default for
	// most source providers; only meaningful overlap with response
	// providers, where it usually is one of the above).
	AutoReturnNone
)

func ParseAutoReturnPolicy(s string) (AutoReturnPolicy, error) {
	switch s {
	case "block":
		return AutoReturnBlock, nil
	case "force":
		return AutoReturnForce, nil
	case "if_not_full":
		return AutoReturnIfNotFull, nil
	case "", "none":
		return AutoReturnNone, nil
	default:
		return AutoReturnNone, fmt.Errorf("provider: unknown auto_return policy %q", s)
	}
}

// ReservedNames may not be used for user-defined providers.
var ReservedNames = map[string]bool{
	"request":  true,
	"response": true,
	"stats":    true,
	"null":     true,
	"for_each": true,
	"error":    true,
}

// Provider is the common surface every provider kind exposes: a receiver
// half to draw values from, and — for providers that support it — a
// sender half used for response-provider writes and auto-returns.
type Provider struct {
	name       string
	receiver   *channel.Receiver[jsonvalue.Value]
	sender     *channel.Sender[jsonvalue.Value] // nil once the provider is a pure, already-fully-fed source
	autoReturn AutoReturnPolicy
	stop       func() // stops any background reader goroutine; nil if none
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AutoReturn() AutoReturnPolicy { return p.autoReturn }

// Receiver exposes the stream of values for templates/queries to draw from.
func (p *Provider) Receiver() *channel.Receiver[jsonvalue.Value] { return p.receiver }

// Sender exposes the sink half, used by `provides`/`logs` dispatch and by
// auto-return. Nil for providers with no writable side.
func (p *Provider) Sender() *channel.Sender[jsonvalue.Value] { return p.sender }

// Stop releases any background goroutine feeding this provider (file
// readers). Safe to call multiple times.
func (p *Provider) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

// Ticket is a deferred reinsertion action attached to a value drawn from a
// provider: "auto-return ticket" in glossary.
type Ticket struct {
	provider *Provider
	value    jsonvalue.Value
}

// NewTicket is used by the request pipeline when zipping provider streams:
// every value drawn carries back a ticket to its origin provider.
func NewTicket(p *Provider, v jsonvalue.Value) Ticket {
	return Ticket{provider: p, value: v}
}

// Return executes the originating provider's auto_return policy. Called by
// the request pipeline on request completion, unless the endpoint sets
// no_auto_returns.
func (t Ticket) Return(ctx context.Context) error {
	if t.provider == nil || t.provider.sender == nil {
		return nil
	}
	switch t.provider.autoReturn {
	case AutoReturnBlock:
		return t.provider.sender.Send(ctx, t.value)
	case AutoReturnForce:
		t.provider.sender.ForceSend(t.value)
		return nil
	case AutoReturnIfNotFull:
		t.provider.sender.TrySend(t.value) // drop silently when full
		return nil
	default:
		return nil
	}
}
