package notify

import (
	"context"
	"sync"
	"time"

	"alphahunter/internal/models"
)

// CooldownGate suppresses repeats of the same exit reason or alert for a
// symbol until the cooldown has passed. Candidate reports pass through.
type CooldownGate struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewCooldownGate wraps next. A non-positive cooldown disables the gate.
func NewCooldownGate(next Notifier, cooldown time.Duration) *CooldownGate {
	return &CooldownGate{
		next:     next,
		cooldown: cooldown,
		now:      time.Now,
		sent:     make(map[string]time.Time),
	}
}

// allow records key and reports whether it is outside the cooldown.
func (g *CooldownGate) allow(key string, at time.Time) bool {
	if g.cooldown <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.sent[key]; ok && at.Sub(last) < g.cooldown {
		return false
	}
	g.sent[key] = at
	return true
}

func (g *CooldownGate) PublishCandidates(ctx context.Context, r models.ScanReport) error {
	return g.next.PublishCandidates(ctx, r)
}

// PublishExits forwards only the signals outside their cooldown. Nothing is
// forwarded when every signal is suppressed.
func (g *CooldownGate) PublishExits(ctx context.Context, r *models.ExitReport) error {
	now := g.now()
	out := models.NewExitReport(r.Date)
	out.Evaluated = r.Evaluated
	for _, sig := range r.Signals() {
		if g.allow(sig.Symbol+"|"+string(sig.Reason), now) {
			out.Add(sig)
		}
	}
	if out.Len() == 0 {
		return nil
	}
	return g.next.PublishExits(ctx, out)
}

func (g *CooldownGate) Send(ctx context.Context, n Notification) error {
	if n.Symbol != "" && !g.allow(n.Symbol+"|"+n.Title, g.now()) {
		return nil
	}
	return g.next.Send(ctx, n)
}
