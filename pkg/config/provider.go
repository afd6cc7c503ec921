package config

import (
	"context"
	"strconv"

	"carnav/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	FocusPolicy(ctx context.Context) string
	Animate(ctx context.Context) bool
	DebugOverlay(ctx context.Context) bool

	SetFocusPolicy(ctx context.Context, name string) error
	SetAnimate(ctx context.Context, on bool) error
	SetDebugOverlay(ctx context.Context, on bool) error

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// FocusPolicy ignores stored names that are no longer valid.
func (p *UnifiedProvider) FocusPolicy(ctx context.Context) string {
	name := p.getString(ctx, KeyFocusPolicy, p.base.Focus.Policy)
	if !ValidPolicy(name) {
		return p.base.Focus.Policy
	}
	return name
}

func (p *UnifiedProvider) Animate(ctx context.Context) bool {
	return p.getBool(ctx, KeyFocusAnimate, p.base.Focus.Animate)
}

func (p *UnifiedProvider) DebugOverlay(ctx context.Context) bool {
	return p.getBool(ctx, KeyDebugOverlay, p.base.Debug.Overlay)
}

func (p *UnifiedProvider) SetFocusPolicy(ctx context.Context, name string) error {
	return p.set(ctx, KeyFocusPolicy, name)
}

func (p *UnifiedProvider) SetAnimate(ctx context.Context, on bool) error {
	return p.set(ctx, KeyFocusAnimate, strconv.FormatBool(on))
}

func (p *UnifiedProvider) SetDebugOverlay(ctx context.Context, on bool) error {
	return p.set(ctx, KeyDebugOverlay, strconv.FormatBool(on))
}

// --- Helpers ---

func (p *UnifiedProvider) set(ctx context.Context, key, val string) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, key, val)
}

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
