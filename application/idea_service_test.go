package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
	infraaudit "github.com/felixgeelhaar/ideaflow/infrastructure/audit"
	"github.com/felixgeelhaar/ideaflow/infrastructure/logging"
	"github.com/felixgeelhaar/ideaflow/infrastructure/statemachine"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/ideaflow/infrastructure/telemetry"
)

type countingMetrics struct {
	telemetry.NoopMetricsProvider

	mu            sync.Mutex
	transitions   int
	rejected      int
	conflicts     int
	auditFailures int
}

func (m *countingMetrics) RecordTransition(context.Context, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions++
}

func (m *countingMetrics) RecordRejectedTransition(context.Context, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *countingMetrics) RecordConflict(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) RecordAuditFailure(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditFailures++
}

type failingLog struct {
	err error
}

func (l failingLog) Record(context.Context, audit.Entry) (audit.Entry, error) {
	return audit.Entry{}, l.err
}

func (l failingLog) Query(context.Context, audit.Filter) ([]audit.Entry, error) {
	return nil, l.err
}

func (failingLog) Close() error { return nil }

type fixture struct {
	service *IdeaService
	store   *memory.IdeaStore
	log     *infraaudit.MemoryLog
	metrics *countingMetrics
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()

	f := fixture{
		store:   memory.NewIdeaStore(),
		log:     infraaudit.NewMemoryLog(),
		metrics: &countingMetrics{},
	}
	opts = append([]Option{
		WithAuditLog(f.log),
		WithLogger(logging.Nop()),
		WithMetrics(f.metrics),
	}, opts...)

	service, err := NewIdeaService(f.store, opts...)
	if err != nil {
		t.Fatalf("NewIdeaService() error = %v", err)
	}
	f.service = service
	return f
}

func TestNewIdeaService_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewIdeaService(nil); err == nil {
		t.Error("NewIdeaService(nil) succeeded")
	}
}

func TestIdeaService_CreateDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "  Offline mode ", Owner: "ann"})
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	if created.Version != 1 || created.Status != idea.StatusDraft {
		t.Errorf("CreateDraft() = version %d status %s, want 1 draft", created.Version, created.Status)
	}
	if created.Title != "Offline mode" {
		t.Errorf("Title = %q", created.Title)
	}
	if f.log.Len() != 0 {
		t.Errorf("creation recorded %d audit entries", f.log.Len())
	}

	published, err := f.service.CreatePublished(ctx, idea.Draft{Title: "Dark mode"})
	if err != nil {
		t.Fatalf("CreatePublished() error = %v", err)
	}
	if published.Version != 1 || published.Status != idea.StatusProposed {
		t.Errorf("CreatePublished() = version %d status %s, want 1 proposed", published.Version, published.Status)
	}

	if _, err := f.service.CreateDraft(ctx, idea.Draft{Title: "  "}); !errors.Is(err, idea.ErrInvalidIdea) {
		t.Errorf("CreateDraft(blank) error = %v, want ErrInvalidIdea", err)
	}
}

func TestIdeaService_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "Round trip"})
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	published, err := f.service.Publish(ctx, created.ID, 1, "ann")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if published.Version != 2 || published.Status != idea.StatusProposed {
		t.Fatalf("Publish() = version %d status %s, want 2 proposed", published.Version, published.Status)
	}

	current := published
	for _, target := range []idea.Status{idea.StatusExperiment, idea.StatusOutcome, idea.StatusReflection} {
		current, err = f.service.TransitionState(ctx, TransitionRequest{
			ID:              created.ID,
			ExpectedVersion: current.Version,
			Target:          target,
			Actor:           "ann",
			Reason:          "next stage",
		})
		if err != nil {
			t.Fatalf("TransitionState(%s) error = %v", target, err)
		}
	}

	if current.Status != idea.StatusReflection || current.Version != 5 {
		t.Errorf("final = version %d status %s, want 5 reflection", current.Version, current.Status)
	}

	history, err := f.service.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("History() returned %d entries, want 4", len(history))
	}
	if history[0].PreviousState != "draft" || history[0].NewState != "proposed" || history[0].UserID != "ann" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[3].Goal != "next stage" {
		t.Errorf("history[3].Goal = %q", history[3].Goal)
	}

	report, err := f.service.VerifyHistory(ctx, created.ID)
	if err != nil {
		t.Fatalf("VerifyHistory() error = %v", err)
	}
	if report.Final != idea.StatusReflection || len(report.Steps) != 4 {
		t.Errorf("VerifyHistory() = %+v", report)
	}

	allowed, err := f.service.AllowedTransitions(ctx, created.ID)
	if err != nil {
		t.Fatalf("AllowedTransitions() error = %v", err)
	}
	if len(allowed) != 0 {
		t.Errorf("AllowedTransitions() at reflection = %v, want none", allowed)
	}

	if _, err := f.service.TransitionState(ctx, TransitionRequest{
		ID: created.ID, ExpectedVersion: 5, Target: idea.StatusDraft,
	}); !lifecycle.IsInvalidTransition(err) {
		t.Errorf("transition out of reflection error = %v, want invalid transition", err)
	}
}

func TestIdeaService_StaleVersionScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreatePublished(ctx, idea.Draft{Title: "Stale"})
	if err != nil {
		t.Fatalf("CreatePublished() error = %v", err)
	}
	// Bring the idea to version 3 without leaving proposed.
	for v := 1; v <= 2; v++ {
		desc := "rev"
		if _, err := f.service.UpdateContent(ctx, created.ID, v, idea.Content{Description: &desc}); err != nil {
			t.Fatalf("UpdateContent(v%d) error = %v", v, err)
		}
	}

	moved, err := f.service.TransitionState(ctx, TransitionRequest{ID: created.ID, ExpectedVersion: 3, Target: idea.StatusExperiment})
	if err != nil {
		t.Fatalf("TransitionState() error = %v", err)
	}
	if moved.Status != idea.StatusExperiment || moved.Version != 4 {
		t.Fatalf("TransitionState() = version %d status %s, want 4 experiment", moved.Version, moved.Status)
	}
	if f.log.Len() != 1 {
		t.Fatalf("audit entries = %d, want 1", f.log.Len())
	}

	_, err = f.service.TransitionState(ctx, TransitionRequest{ID: created.ID, ExpectedVersion: 3, Target: idea.StatusExperiment})
	var ce *lifecycle.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("stale TransitionState() error = %v, want *ConflictError", err)
	}
	if ce.Expected != 3 || ce.Actual != 4 {
		t.Errorf("ConflictError = %+v", ce)
	}

	got, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 4 || got.Status != idea.StatusExperiment {
		t.Errorf("after stale call = version %d status %s, want 4 experiment", got.Version, got.Status)
	}
	if f.log.Len() != 1 {
		t.Errorf("audit entries = %d after stale call, want 1", f.log.Len())
	}
	if f.metrics.conflicts != 1 {
		t.Errorf("conflicts recorded = %d, want 1", f.metrics.conflicts)
	}
}

func TestIdeaService_TransitionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     func(id string) TransitionRequest
		wantErr error
	}{
		{"skip stage", func(id string) TransitionRequest {
			return TransitionRequest{ID: id, ExpectedVersion: 1, Target: idea.StatusExperiment}
		}, lifecycle.ErrInvalidTransition},
		{"self transition", func(id string) TransitionRequest {
			return TransitionRequest{ID: id, ExpectedVersion: 1, Target: idea.StatusDraft}
		}, lifecycle.ErrInvalidTransition},
		{"wrong version", func(id string) TransitionRequest {
			return TransitionRequest{ID: id, ExpectedVersion: 2, Target: idea.StatusProposed}
		}, lifecycle.ErrConflict},
		{"missing idea", func(string) TransitionRequest {
			return TransitionRequest{ID: "missing", ExpectedVersion: 1, Target: idea.StatusProposed}
		}, lifecycle.ErrNotFound},
		{"missing version", func(id string) TransitionRequest {
			return TransitionRequest{ID: id, Target: idea.StatusProposed}
		}, idea.ErrMissingVersion},
		{"missing id", func(string) TransitionRequest {
			return TransitionRequest{ExpectedVersion: 1, Target: idea.StatusProposed}
		}, idea.ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "t"})
			if err != nil {
				t.Fatalf("CreateDraft() error = %v", err)
			}

			_, err = f.service.TransitionState(ctx, tt.req(created.ID))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TransitionState() error = %v, want %v", err, tt.wantErr)
			}

			got, _ := f.service.Get(ctx, created.ID)
			if got.Version != 1 || got.Status != idea.StatusDraft {
				t.Errorf("idea changed: version %d status %s", got.Version, got.Status)
			}
			if f.log.Len() != 0 {
				t.Errorf("failed transition recorded %d audit entries", f.log.Len())
			}
		})
	}
}

func TestIdeaService_ConcurrentTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "race"})
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	const racers = 2
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes int
		conflicts int
		mu        sync.Mutex
	)

	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Publish(ctx, created.ID, 1, "racer")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case lifecycle.IsConflict(err):
				conflicts++
			default:
				t.Errorf("Publish() unexpected error = %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != racers-1 {
		t.Errorf("successes = %d, conflicts = %d", successes, conflicts)
	}

	got, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if f.log.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", f.log.Len())
	}
}

func TestIdeaService_AuditFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithAuditLog(failingLog{err: errors.New("disk full")}))
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "audit"})
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	published, err := f.service.Publish(ctx, created.ID, 1, "")
	if err != nil {
		t.Fatalf("Publish() error = %v, want audit failure swallowed", err)
	}
	if published.Status != idea.StatusProposed || published.Version != 2 {
		t.Errorf("Publish() = version %d status %s", published.Version, published.Status)
	}
	if f.metrics.auditFailures != 1 {
		t.Errorf("audit failures recorded = %d, want 1", f.metrics.auditFailures)
	}
	if f.metrics.transitions != 1 {
		t.Errorf("transitions recorded = %d, want 1", f.metrics.transitions)
	}
}

func TestIdeaService_AnonymousActor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, _ := f.service.CreateDraft(ctx, idea.Draft{Title: "anon"})
	if _, err := f.service.Publish(ctx, created.ID, 1, ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	history, err := f.service.History(ctx, created.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("History() = %v, %v", history, err)
	}
	if history[0].UserID != audit.AnonymousUser || history[0].Goal != "" {
		t.Errorf("entry = %+v, want anonymous user and empty goal", history[0])
	}
}

func TestIdeaService_UpdateContent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, _ := f.service.CreateDraft(ctx, idea.Draft{Title: "before", Tags: []string{"a"}})
	title := "after"

	updated, err := f.service.UpdateContent(ctx, created.ID, 1, idea.Content{Title: &title, Tags: []string{"b", "c"}})
	if err != nil {
		t.Fatalf("UpdateContent() error = %v", err)
	}
	if updated.Title != "after" || len(updated.Tags) != 2 || updated.Version != 2 {
		t.Errorf("UpdateContent() = %+v", updated)
	}
	if updated.Status != idea.StatusDraft {
		t.Errorf("Status = %s, want draft", updated.Status)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("UpdatedAt not refreshed")
	}
	if f.log.Len() != 0 {
		t.Errorf("content update recorded %d audit entries", f.log.Len())
	}

	tests := []struct {
		name    string
		version int
		patch   idea.Content
		wantErr error
	}{
		{"stale", 1, idea.Content{Title: &title}, lifecycle.ErrConflict},
		{"empty patch", 2, idea.Content{}, idea.ErrInvalidIdea},
		{"no version", 0, idea.Content{Title: &title}, idea.ErrMissingVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.UpdateContent(ctx, created.ID, tt.version, tt.patch); !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateContent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	blank := " "
	if _, err := f.service.UpdateContent(ctx, created.ID, 2, idea.Content{Title: &blank}); !errors.Is(err, idea.ErrInvalidIdea) {
		t.Errorf("UpdateContent(blank title) error = %v, want ErrInvalidIdea", err)
	}
	got, _ := f.service.Get(ctx, created.ID)
	if got.Version != 2 || got.Title != "after" {
		t.Errorf("rejected patch changed idea: %+v", got)
	}
}

func TestIdeaService_DeleteAndList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.service.CreateDraft(ctx, idea.Draft{Title: "a", Owner: "ann"})
	_, _ = f.service.CreatePublished(ctx, idea.Draft{Title: "b", Owner: "bob"})
	_, _ = f.service.CreateDraft(ctx, idea.Draft{Title: "c", Owner: "ann"})

	drafts, err := f.service.List(ctx, idea.ListFilter{Status: []idea.Status{idea.StatusDraft}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Errorf("List(draft) returned %d, want 2", len(drafts))
	}

	if _, err := f.service.List(ctx, idea.ListFilter{Status: []idea.Status{"archived"}}); !errors.Is(err, idea.ErrUnknownStatus) {
		t.Errorf("List(archived) error = %v, want ErrUnknownStatus", err)
	}

	if err := f.service.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := f.service.Delete(ctx, a.ID); !lifecycle.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
	if _, err := f.service.Get(ctx, a.ID); !lifecycle.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}

	all, _ := f.service.List(ctx, idea.ListFilter{OrderBy: idea.OrderByTitle})
	if len(all) != 2 || all[0].Title != "b" {
		t.Errorf("List() after delete = %d ideas", len(all))
	}
}

func TestIdeaService_VerifyHistoryDetectsTampering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, _ := f.service.CreateDraft(ctx, idea.Draft{Title: "tamper"})
	if _, err := f.service.Publish(ctx, created.ID, 1, "ann"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// An entry that skips a stage, written around the service.
	if _, err := f.log.Record(ctx, audit.Entry{
		EntityType:    audit.EntityIdea,
		EntityID:      created.ID,
		PreviousState: "proposed",
		NewState:      "reflection",
		Timestamp:     time.Now(),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	report, err := f.service.VerifyHistory(ctx, created.ID)
	if !errors.Is(err, statemachine.ErrIllegalStep) {
		t.Fatalf("VerifyHistory() error = %v, want ErrIllegalStep", err)
	}
	if report == nil || report.Final != idea.StatusProposed {
		t.Errorf("report = %+v", report)
	}
}

// gatedLog holds the append for entries entering a given state until
// release is closed.
type gatedLog struct {
	*infraaudit.MemoryLog
	state   string
	held    chan struct{}
	release chan struct{}
}

func (l *gatedLog) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if e.NewState == l.state {
		close(l.held)
		<-l.release
	}
	return l.MemoryLog.Record(ctx, e)
}

func TestIdeaService_VerifyHistoryAcceptsLateAuditWrite(t *testing.T) {
	t.Parallel()

	log := &gatedLog{
		MemoryLog: infraaudit.NewMemoryLog(),
		state:     string(idea.StatusProposed),
		held:      make(chan struct{}),
		release:   make(chan struct{}),
	}
	f := newFixture(t, WithAuditLog(log))
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, idea.Draft{Title: "slow sink"})
	if err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	published := make(chan error, 1)
	go func() {
		_, err := f.service.Publish(ctx, created.ID, 1, "ann")
		published <- err
	}()

	// The publish is committed at version 2; its audit write is pending.
	<-log.held
	if _, err := f.service.TransitionState(ctx, TransitionRequest{
		ID:              created.ID,
		ExpectedVersion: 2,
		Target:          idea.StatusExperiment,
		Actor:           "bob",
	}); err != nil {
		t.Fatalf("TransitionState() error = %v", err)
	}
	close(log.release)
	if err := <-published; err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	history, err := f.service.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].NewState != string(idea.StatusExperiment) {
		t.Fatalf("History() = %+v, want the experiment entry first", history)
	}

	report, err := f.service.VerifyHistory(ctx, created.ID)
	if err != nil {
		t.Fatalf("VerifyHistory() error = %v", err)
	}
	if report.Start != idea.StatusDraft || report.Final != idea.StatusExperiment || len(report.Steps) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{idea.Conflict("x", 1), "conflict"},
		{idea.NotFound("x"), "not_found"},
		{&lifecycle.InvalidTransitionError{From: "a", To: "b"}, "invalid_transition"},
		{idea.ErrMissingVersion, "invalid"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
