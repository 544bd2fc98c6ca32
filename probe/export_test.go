package probe

import (
	"context"
	"time"
)

// SetSleep replaces the delay function used by p.
func SetSleep(p *Probe, fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}
