package parsers

import (
	"context"
	"fmt"
	"strings"

	"ddash/internal/channel"
	"ddash/internal/services"
	"ddash/internal/textutil"
)

// Parser is implemented by every supported raw format.
type Parser interface {
	// Format returns the stable format identifier recorded in the manifest.
	Format() string
	// Channels returns the channel layout tables produced by Parse will carry.
	Channels() []channel.Spec
	// Detect reports whether data looks like this format.
	Detect(data []byte) bool
	// Parse extracts the channel table. Malformed rows are counted in
	// Table.Rejected rather than failing the parse.
	Parse(ctx context.Context, data []byte) (*channel.Table, error)
}

// BoundLookup returns a validity interval override for a format channel.
type BoundLookup func(format, channel string) (min, max float64, ok bool)

// Option configures the default registry.
type Option func(*options)

type options struct {
	bounds BoundLookup
}

// WithBounds overrides the declared channel bounds of the built-in formats.
func WithBounds(lookup BoundLookup) Option {
	return func(o *options) { o.bounds = lookup }
}

// Registry maps format identifiers to parsers. It is immutable after construction.
type Registry struct {
	order []Parser
	byKey map[string]Parser
}

// NewRegistry validates and indexes the supplied parsers. Detection order
// follows argument order.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Parser, len(parsers))}
	for i, p := range parsers {
		if p == nil {
			return nil, fmt.Errorf("parser %d is nil", i)
		}
		key := textutil.FoldKey(p.Format())
		if key == "" {
			return nil, fmt.Errorf("parser %d has an empty format identifier", i)
		}
		if _, dup := r.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate parser format %q", p.Format())
		}
		r.byKey[key] = p
		r.order = append(r.order, p)
	}
	if len(r.order) == 0 {
		return nil, fmt.Errorf("registry requires at least one parser")
	}
	return r, nil
}

// Default returns the registry of built-in formats.
func Default(opts ...Option) *Registry {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := NewRegistry(
		newHPRParser(applyBounds(FormatHPR, hprChannels, cfg.bounds)),
		newGGAParser(applyBounds(FormatGGA, ggaChannels, cfg.bounds)),
	)
	if err != nil {
		panic(err)
	}
	return r
}

func applyBounds(format string, specs []channel.Spec, lookup BoundLookup) []channel.Spec {
	out := append([]channel.Spec(nil), specs...)
	if lookup == nil {
		return out
	}
	for i := range out {
		if lo, hi, ok := lookup(format, out[i].Name); ok {
			out[i].Min, out[i].Max = lo, hi
		}
	}
	return out
}

// Formats lists registered format identifiers in detection order.
func (r *Registry) Formats() []string {
	out := make([]string, len(r.order))
	for i, p := range r.order {
		out[i] = p.Format()
	}
	return out
}

// Lookup returns the parser registered for format.
func (r *Registry) Lookup(format string) (Parser, bool) {
	p, ok := r.byKey[textutil.FoldKey(format)]
	return p, ok
}

// Detect returns the first format whose detector accepts data. When formats
// are given only those are tried, in order; otherwise every registered
// format is. ok is false when nothing matches.
func (r *Registry) Detect(data []byte, formats ...string) (format string, ok bool) {
	candidates := r.order
	if len(formats) > 0 {
		candidates = make([]Parser, 0, len(formats))
		for _, f := range formats {
			if p, found := r.Lookup(f); found {
				candidates = append(candidates, p)
			}
		}
	}
	for _, p := range candidates {
		if p.Detect(data) {
			return p.Format(), true
		}
	}
	return "", false
}

// Parse runs the parser registered for format.
func (r *Registry) Parse(ctx context.Context, data []byte, format string) (*channel.Table, error) {
	p, ok := r.Lookup(format)
	if !ok {
		return nil, services.Wrap(services.ErrUnknownFormat, "parsers", "parse", fmt.Sprintf("no parser registered for %q", strings.TrimSpace(format)), nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrEmptyInput, "parsers", p.Format(), "zero-byte input", nil)
	}
	return p.Parse(ctx, data)
}
