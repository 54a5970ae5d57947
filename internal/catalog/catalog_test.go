package catalog

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/joblink/internal/filtering"
	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/notify"
	"github.com/spigell/joblink/internal/profiles"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func tilerAttrs() marketplace.JobAttributes {
	return marketplace.JobAttributes{
		Title:    "Experienced Tiler Needed",
		Location: "Lagos",
		Wage:     marketplace.Wage{Amount: 1500000, Currency: "NGN"},
		Category: "Construction",
		Skills:   []string{"Tiling"},
		Urgent:   true,
	}
}

// newTestCatalog returns a catalog whose clock advances one minute per call.
func newTestCatalog(opts Options) *Catalog {
	c := New(nil, opts)
	var tick atomic.Int64
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Minute) }
	return c
}

func TestPostJob(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	c := newTestCatalog(Options{Notifier: notifier})

	job, err := c.PostJob(context.Background(), "employer-1", tilerAttrs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" || job.Filled || job.EmployerID != "employer-1" {
		t.Fatalf("unexpected job: %+v", job)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected JobPosted event, got %d", len(notifier.events))
	}
	if e, ok := notifier.events[0].(notify.JobPosted); !ok || e.JobID != job.ID {
		t.Fatalf("unexpected event: %#v", notifier.events[0])
	}
}

func TestPostJobValidation(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()

	attrs := tilerAttrs()
	attrs.Wage.Amount = 0
	if _, err := c.PostJob(ctx, "employer-1", attrs); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error for zero wage, got %v", err)
	}

	attrs = tilerAttrs()
	attrs.Title = " "
	if _, err := c.PostJob(ctx, "employer-1", attrs); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}

	if _, err := c.PostJob(ctx, "", tilerAttrs()); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error for missing employer, got %v", err)
	}
}

func TestPostJobChecksDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := profiles.New(nil, nil)
	worker, _ := store.CreateProfile(ctx, marketplace.RoleWorker, profiles.Attributes{DisplayName: "Emeka", Location: "Lagos"})
	employer, _ := store.CreateProfile(ctx, marketplace.RoleEmployer, profiles.Attributes{DisplayName: "BuildSmart", Location: "Lagos"})

	c := newTestCatalog(Options{Directory: store})

	if _, err := c.PostJob(ctx, "ghost", tilerAttrs()); !marketplace.Is(err, marketplace.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := c.PostJob(ctx, worker.ID, tilerAttrs()); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := c.PostJob(ctx, employer.ID, tilerAttrs()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchOrderAndFilters(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()

	first, _ := c.PostJob(ctx, "employer-1", tilerAttrs())
	cleaner := marketplace.JobAttributes{Title: "House Cleaner", Location: "Abuja", Wage: marketplace.Wage{Amount: 450000}, Category: "Cleaning", Skills: []string{"Cleaning"}}
	second, _ := c.PostJob(ctx, "employer-2", cleaner)
	third, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	seq, err := c.Search(ctx, Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for job := range seq {
		ids = append(ids, job.ID)
	}
	if !slices.Equal(ids, []string{third.ID, second.ID, first.ID}) {
		t.Fatalf("expected newest first, got %v", ids)
	}

	if _, err := c.MarkFilled(ctx, first.ID, "employer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Archive(ctx, third.ID, "employer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq, _ = c.Search(ctx, Query{Category: "construction", ActiveOnly: true})
	if got := slices.Collect(seq); len(got) != 0 {
		t.Fatalf("expected no active construction jobs, got %d", len(got))
	}

	seq, _ = c.Search(ctx, Query{Category: "all", Location: "all"})
	got := slices.Collect(seq)
	if len(got) != 2 {
		t.Fatalf("expected archived job to be hidden, got %d", len(got))
	}

	for _, q := range []Query{
		{Text: "tiler", Location: "lagos"},
		{Text: "cleaner"},
		{Location: "abuja"},
		{},
	} {
		wildcard := q
		wildcard.Category = "all"
		plainSeq, _ := c.Search(ctx, q)
		wildSeq, _ := c.Search(ctx, wildcard)
		plain := jobIDs(plainSeq)
		wild := jobIDs(wildSeq)
		if !slices.Equal(plain, wild) {
			t.Fatalf("category all must match no category filter for %+v: %v vs %v", q, wild, plain)
		}
	}

	for job := range seq {
		job.Title = "mutated"
	}
	stored, _ := c.Get(ctx, second.ID)
	if stored.Title != "House Cleaner" {
		t.Fatalf("search results must not alias stored jobs")
	}
}

func jobIDs(seq iter.Seq[*marketplace.Job]) []string {
	var ids []string
	for job := range seq {
		ids = append(ids, job.ID)
	}
	return ids
}

func TestOwnedIncludesArchived(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()

	first, _ := c.PostJob(ctx, "employer-1", tilerAttrs())
	if _, err := c.PostJob(ctx, "employer-2", tilerAttrs()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	third, _ := c.PostJob(ctx, "employer-1", tilerAttrs())
	if _, err := c.Archive(ctx, first.ID, "employer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq, err := c.Owned(ctx, "employer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := jobIDs(seq); !slices.Equal(ids, []string{third.ID, first.ID}) {
		t.Fatalf("expected both owned jobs newest first, got %v", ids)
	}

	seq, _ = c.Search(ctx, Query{EmployerID: "employer-1"})
	if ids := jobIDs(seq); !slices.Equal(ids, []string{third.ID}) {
		t.Fatalf("expected search to keep hiding archived jobs, got %v", ids)
	}

	if _, err := c.Owned(ctx, ""); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilterStatusIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	c := newTestCatalog(Options{Logger: zap.New(core)})
	ctx := context.Background()
	job, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	if _, err := c.Owned(ctx, "employer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("job filters").All()
	if len(entries) != 1 {
		t.Fatalf("expected one filter status entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if matched, _ := fields["matched_jobs"].([]interface{}); len(matched) != 1 || matched[0] != job.ID {
		t.Fatalf("unexpected matched jobs: %v", fields["matched_jobs"])
	}
	statuses, ok := fields["filters"].([]filtering.Status)
	if !ok {
		t.Fatalf("unexpected filters field: %T", fields["filters"])
	}
	for _, status := range statuses {
		if status.Name == "archived" && status.Enabled {
			t.Fatalf("expected archived step disabled for the owner view, got %+v", status)
		}
	}
}

func TestReopenHeld(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()
	job, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	unlock := c.Hold(job.ID)
	if _, err := c.ReopenHeld(ctx, job.ID, "employer-1"); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected state error for an open job, got %v", err)
	}
	if _, err := c.MarkFilledHeld(ctx, job.ID, "employer-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reopened, err := c.ReopenHeld(ctx, job.ID, "employer-1")
	unlock()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reopened.Filled || reopened.FilledAt != nil {
		t.Fatalf("expected job to be open again, got %+v", reopened)
	}
	if _, err := c.MarkFilled(ctx, job.ID, "employer-1"); err != nil {
		t.Fatalf("expected reopened job to be fillable: %v", err)
	}
}

func TestMarkFilled(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()
	job, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	if _, err := c.MarkFilled(ctx, job.ID, "employer-2"); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := c.MarkFilled(ctx, "missing", "employer-1"); !marketplace.Is(err, marketplace.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	filled, err := c.MarkFilled(ctx, job.ID, "employer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filled.Filled || filled.FilledAt == nil {
		t.Fatalf("expected filled job with timestamp: %+v", filled)
	}

	if _, err := c.MarkFilled(ctx, job.ID, "employer-1"); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected state error on second fill, got %v", err)
	}
	if _, err := c.Edit(ctx, job.ID, "employer-1", tilerAttrs()); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected filled job to reject edits, got %v", err)
	}
}

func TestMarkFilledConcurrent(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()
	job, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.MarkFilled(ctx, job.ID, "employer-1"); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Fatalf("expected exactly one fill, got %d", succeeded.Load())
	}
}

func TestEdit(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()
	job, _ := c.PostJob(ctx, "employer-1", tilerAttrs())

	attrs := tilerAttrs()
	attrs.Title = "Senior Tiler"
	attrs.Wage = marketplace.Wage{Amount: 2000000}
	edited, err := c.Edit(ctx, job.ID, "employer-1", attrs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Title != "Senior Tiler" || edited.Wage.Amount != 2000000 || !edited.UpdatedAt.After(edited.CreatedAt) {
		t.Fatalf("unexpected edit result: %+v", edited)
	}

	if _, err := c.Edit(ctx, job.ID, "employer-2", attrs); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestRanked(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(Options{})
	ctx := context.Background()
	tiler, _ := c.PostJob(ctx, "employer-1", tilerAttrs())
	_, _ = c.PostJob(ctx, "employer-1", marketplace.JobAttributes{Title: "Driver", Location: "Kano", Wage: marketplace.Wage{Amount: 650000}, Skills: []string{"Driving"}})

	worker := &marketplace.Profile{ID: "w", Role: marketplace.RoleWorker, Location: "Lagos", Skills: marketplace.NewSkillSet("Tiling")}
	ranked, err := c.Ranked(ctx, worker, Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 2 || ranked[0].Job.ID != tiler.ID || ranked[0].Score != 100 || ranked[1].Score != 0 {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}

	ranked, err = c.Ranked(ctx, worker, Query{MinScore: 50})
	if err != nil || len(ranked) != 1 {
		t.Fatalf("expected min score to keep one job, got %d %v", len(ranked), err)
	}

	if _, err := c.Ranked(ctx, &marketplace.Profile{Role: marketplace.RoleEmployer}, Query{}); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error for employer, got %v", err)
	}
	if _, err := c.Search(ctx, Query{MinScore: 10}); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error for min score without worker, got %v", err)
	}
}
