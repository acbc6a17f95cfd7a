package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

type recorder struct {
	mu         sync.Mutex
	candidates []models.ScanReport
	exits      []*models.ExitReport
	sent       []Notification
	err        error
}

func (r *recorder) PublishCandidates(_ context.Context, rep models.ScanReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, rep)
	return r.err
}

func (r *recorder) PublishExits(_ context.Context, rep *models.ExitReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, rep)
	return r.err
}

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func exitReport(sigs ...models.ExitSignal) *models.ExitReport {
	r := models.NewExitReport(time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC))
	for _, s := range sigs {
		r.Add(s)
	}
	return r
}

func TestWebhookPostsJSON(t *testing.T) {
	var got map[string]interface{}
	var contentType, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		agent = r.Header.Get("User-Agent")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	report := models.ScanReport{ID: "scan-1", Regime: "UPTREND", Candidates: []models.CandidateSignal{{Symbol: "600001", Grade: models.GradeA}}}
	require.NoError(t, w.PublishCandidates(context.Background(), report))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "alphahunter/1.0", agent)
	assert.Equal(t, "candidates", got["type"])
	data := got["data"].(map[string]interface{})
	assert.Equal(t, "scan-1", data["id"])
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Timeout: time.Second})
	err := w.Send(context.Background(), Notification{Type: NotificationAlert, Title: "gap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSkipsEmptyExitReport(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL})
	require.NoError(t, w.PublishExits(context.Background(), exitReport()))
	assert.Zero(t, calls)
}

func TestMultiJoinsErrorsAndKeepsGoing(t *testing.T) {
	bad := &recorder{err: errors.New("down")}
	good := &recorder{}
	m := NewMulti(bad)
	m.Add(good)

	err := m.PublishCandidates(context.Background(), models.ScanReport{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, good.candidates, 1)
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	next := &recorder{}
	g := NewCooldownGate(next, time.Hour)
	now := time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	stop := models.ExitSignal{Symbol: "600001", Reason: models.ExitForcedStop, Authoritative: true}
	warn := models.ExitSignal{Symbol: "600001", Reason: models.NoticeMAWarning}
	ctx := context.Background()

	require.NoError(t, g.PublishExits(ctx, exitReport(stop)))
	require.NoError(t, g.PublishExits(ctx, exitReport(stop, warn)))
	require.Len(t, next.exits, 2)
	assert.Equal(t, 1, next.exits[1].Len())
	assert.Equal(t, models.NoticeMAWarning, next.exits[1].Signals()[0].Reason)

	// fully suppressed pass forwards nothing
	require.NoError(t, g.PublishExits(ctx, exitReport(stop, warn)))
	assert.Len(t, next.exits, 2)

	now = now.Add(time.Hour)
	require.NoError(t, g.PublishExits(ctx, exitReport(stop)))
	assert.Len(t, next.exits, 3)
}

func TestCooldownAlertsAndCandidates(t *testing.T) {
	next := &recorder{}
	g := NewCooldownGate(next, time.Hour)
	ctx := context.Background()

	alert := Notification{Type: NotificationAlert, Symbol: "600001", Title: "GAP_DOWN"}
	require.NoError(t, g.Send(ctx, alert))
	require.NoError(t, g.Send(ctx, alert))
	require.NoError(t, g.Send(ctx, Notification{Type: NotificationInfo, Title: "ranks updated"}))
	require.NoError(t, g.Send(ctx, Notification{Type: NotificationInfo, Title: "ranks updated"}))
	assert.Len(t, next.sent, 3)

	require.NoError(t, g.PublishCandidates(ctx, models.ScanReport{ID: "a"}))
	require.NoError(t, g.PublishCandidates(ctx, models.ScanReport{ID: "a"}))
	assert.Len(t, next.candidates, 2)
}

func TestZeroCooldownForwardsEverything(t *testing.T) {
	next := &recorder{}
	g := NewCooldownGate(next, 0)
	sig := models.ExitSignal{Symbol: "600001", Reason: models.NoticeTakeProfit}
	for i := 0; i < 3; i++ {
		require.NoError(t, g.PublishExits(context.Background(), exitReport(sig)))
	}
	assert.Len(t, next.exits, 3)
}

func TestNewDisabledIsSilent(t *testing.T) {
	n := New(config.NotificationConfig{Enabled: false}, time.Hour, zerolog.Nop())
	assert.NoError(t, n.PublishCandidates(context.Background(), models.ScanReport{}))

	n = New(config.NotificationConfig{Enabled: true}, time.Hour, zerolog.Nop())
	_, gated := n.(*CooldownGate)
	assert.True(t, gated)
	assert.NoError(t, n.PublishExits(context.Background(), exitReport(models.ExitSignal{Symbol: "600001", Reason: models.NoticeTakeProfit})))
}
