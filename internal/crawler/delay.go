package crawler

import (
	"context"
	"time"

	"loftergrab/internal/config"
)

// DelayKind identifies which pacing rule applies before a request.
type DelayKind int

const (
	// DelayBetweenL1Pages is the pause between successive comment pages.
	DelayBetweenL1Pages DelayKind = iota

	// DelayBeforeL2Request is the pause before every reply-batch
	// request. The reply endpoint is rate-limited much harder than the
	// page endpoint.
	DelayBeforeL2Request
)

// DelayPolicy is the scheduling hook the fetcher invokes before
// rate-limited requests.
//
// Design decision: We inject pacing as an interface rather than calling
// time.Sleep inline because:
//  1. Tests replace it to run instantly
//  2. The durations are configuration, not fetch logic
//  3. A future adaptive policy (slow down on errors) drops in cleanly
type DelayPolicy interface {
	// Sleep blocks for the configured duration of kind, or until the
	// context is done, whichever comes first.
	Sleep(ctx context.Context, kind DelayKind) error
}

// FixedDelayPolicy sleeps a fixed configured duration per kind.
type FixedDelayPolicy struct {
	l1PageDelay    time.Duration
	l2RequestDelay time.Duration
}

// NewFixedDelayPolicy builds the default pacing policy from config.
func NewFixedDelayPolicy(cfg *config.Config) *FixedDelayPolicy {
	return &FixedDelayPolicy{
		l1PageDelay:    cfg.L1PageDelay,
		l2RequestDelay: cfg.L2RequestDelay,
	}
}

// Sleep implements DelayPolicy.
func (p *FixedDelayPolicy) Sleep(ctx context.Context, kind DelayKind) error {
	var d time.Duration
	switch kind {
	case DelayBetweenL1Pages:
		d = p.l1PageDelay
	case DelayBeforeL2Request:
		d = p.l2RequestDelay
	}
	return sleepContext(ctx, d)
}

// sleepContext sleeps for d or until the context is done, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
