package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/kftoggle/pkg/document"
	"github.com/umputun/kftoggle/pkg/domain"
	"github.com/umputun/kftoggle/pkg/schedule"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/journal.go -pkg mocks -skip-ensure -fmt goimports . Journal

// Scheduler periodically reconciles the toggle field of a document with the schedule rule.
// It keeps the last written state in memory only, every cycle compares against the stored document.
type Scheduler struct {
	store    Store
	journal  Journal
	clock    Clock
	rule     Rule
	interval time.Duration
	location *time.Location
	path     string

	lastWritten *domain.State
}

// Store loads and saves the managed document
type Store interface {
	Load(ctx context.Context) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document) error
}

// Journal records performed transitions
type Journal interface {
	Record(ctx context.Context, t domain.Transition) error
}

// Rule computes the desired toggle state for a given time
type Rule interface {
	Desired(now time.Time) domain.State
}

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

// ClockFunc is an adapter to use a function as Clock
type ClockFunc func() time.Time

// Now returns f()
func (f ClockFunc) Now() time.Time { return f() }

// Params defines scheduler dependencies and settings
type Params struct {
	Store    Store
	Journal  Journal        // optional
	Clock    Clock          // defaults to time.Now
	Rule     Rule           // defaults to schedule.Default
	Interval time.Duration  // defaults to a minute
	Location *time.Location // defaults to time.Local
	Path     string         // document location, used for logs and journal entries
}

// Result describes the outcome of a single reconcile cycle
type Result struct {
	At      time.Time
	Desired domain.State
	Current domain.State // meaningful only if HasCurrent is true
	// HasCurrent is false if the document was not loaded or had no usable toggle value
	HasCurrent bool
	Written    bool
	Err        error
}

// NewScheduler makes a scheduler with the given params
func NewScheduler(params Params) *Scheduler {
	res := &Scheduler{
		store:    params.Store,
		journal:  params.Journal,
		clock:    params.Clock,
		rule:     params.Rule,
		interval: params.Interval,
		location: params.Location,
		path:     params.Path,
	}
	if res.clock == nil {
		res.clock = ClockFunc(time.Now)
	}
	if res.rule == nil {
		res.rule = schedule.Default
	}
	if res.interval <= 0 {
		res.interval = time.Minute
	}
	if res.location == nil {
		res.location = time.Local
	}
	return res
}

// LastWritten returns the state written by this scheduler the last time, false if nothing was written yet
func (s *Scheduler) LastWritten() (domain.State, bool) {
	if s.lastWritten == nil {
		return domain.Disabled, false
	}
	return *s.lastWritten, true
}

// Run reconciles immediately and then every interval until the context is canceled
func (s *Scheduler) Run(ctx context.Context) error {
	lgr.Printf("[INFO] scheduler started for %s, interval %v, location %s", s.path, s.interval, s.location)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			lgr.Printf("[INFO] scheduler stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle runs a single reconcile and reports status
func (s *Scheduler) cycle(ctx context.Context) Result {
	res := s.Reconcile(ctx)
	lgr.Printf("[INFO] [%s] status: %s (m_Enable = %d)", res.At.Format("2006-01-02 15:04:05"), res.Desired, int(res.Desired))
	return res
}

// Reconcile loads the document, compares its toggle with the desired state and writes
// the document back if they differ. Load and save failures are reported in Result.Err,
// in-memory state is advanced only after a successful write.
func (s *Scheduler) Reconcile(ctx context.Context) Result {
	now := s.clock.Now().In(s.location)
	res := Result{At: now, Desired: s.rule.Desired(now)}

	if last, ok := s.LastWritten(); !ok || last != res.Desired {
		lgr.Printf("[INFO] state changed: %s -> %d", s.lastWrittenStr(), int(res.Desired))
	}

	doc, err := s.store.Load(ctx)
	if err != nil {
		res.Err = fmt.Errorf("load: %w", err)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			lgr.Printf("[ERROR] file not found, skip cycle: %v", err)
		case errors.Is(err, domain.ErrMalformed):
			lgr.Printf("[ERROR] can't parse file, skip cycle: %v", err)
		default:
			lgr.Printf("[ERROR] can't load file, skip cycle: %v", err)
		}
		return res
	}

	res.Current, res.HasCurrent = doc.Toggle()
	if res.HasCurrent && res.Current == res.Desired {
		lgr.Printf("[DEBUG] %s already %d, nothing to change", document.ToggleKey, int(res.Desired))
		s.remember(res.Desired)
		return res
	}
	if !res.HasCurrent {
		lgr.Printf("[WARN] %s has no usable %s value, setting %d", s.path, document.ToggleKey, int(res.Desired))
	}

	doc.SetToggle(res.Desired)
	if err := s.store.Save(ctx, doc); err != nil {
		res.Err = fmt.Errorf("save: %w", err)
		lgr.Printf("[ERROR] failed to update file: %v", err)
		return res
	}
	res.Written = true
	s.remember(res.Desired)
	lgr.Printf("[INFO] %s changed to %d", document.ToggleKey, int(res.Desired))

	s.record(ctx, res)
	return res
}

// remember sets in-memory state. A no-op cycle also counts, the file already holds the value.
func (s *Scheduler) remember(st domain.State) {
	s.lastWritten = &st
}

func (s *Scheduler) record(ctx context.Context, res Result) {
	if s.journal == nil {
		return
	}
	tr := domain.Transition{At: res.At, Path: s.path, To: res.Desired}
	if res.HasCurrent {
		from := res.Current
		tr.From = &from
	}
	if err := s.journal.Record(ctx, tr); err != nil {
		lgr.Printf("[WARN] failed to record transition: %v", err)
	}
}

func (s *Scheduler) lastWrittenStr() string {
	if last, ok := s.LastWritten(); ok {
		return fmt.Sprintf("%d", int(last))
	}
	return "none"
}
