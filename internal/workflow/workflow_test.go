package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/joblink/internal/catalog"
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

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

type fixture struct {
	ctx      context.Context
	profiles *profiles.Store
	catalog  *catalog.Catalog
	workflow *Workflow
	notifier *recordingNotifier
	employer *marketplace.Profile
	workers  []*marketplace.Profile
	job      *marketplace.Job
}

// blockingRepository parks FindByPair until release is closed.
type blockingRepository struct {
	*MemoryRepository
	entered chan struct{}
	release chan struct{}
}

func newBlockingRepository() *blockingRepository {
	return &blockingRepository{
		MemoryRepository: NewMemoryRepository(),
		entered:          make(chan struct{}, 1),
		release:          make(chan struct{}),
	}
}

func (r *blockingRepository) FindByPair(ctx context.Context, jobID, workerID string) (*marketplace.Application, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return r.MemoryRepository.FindByPair(ctx, jobID, workerID)
}

type failingUpdateRepository struct {
	*MemoryRepository
	fail atomic.Bool
}

func (r *failingUpdateRepository) Update(ctx context.Context, app *marketplace.Application) error {
	if r.fail.Load() {
		return errors.New("connection reset by peer")
	}
	return r.MemoryRepository.Update(ctx, app)
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	return newFixtureWithRepository(t, workers, nil)
}

func newFixtureWithRepository(t *testing.T, workers int, repo Repository) *fixture {
	t.Helper()

	ctx := context.Background()
	store := profiles.New(nil, nil)
	notifier := &recordingNotifier{}
	cat := catalog.New(nil, catalog.Options{Directory: store})
	wf := New(repo, cat, Options{Profiles: store, Notifier: notifier})

	var tick atomic.Int64
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	wf.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Minute) }

	employer, err := store.CreateProfile(ctx, marketplace.RoleEmployer, profiles.Attributes{DisplayName: "BuildSmart Nigeria", Location: "Lagos"})
	if err != nil {
		t.Fatalf("creating employer: %v", err)
	}

	f := &fixture{ctx: ctx, profiles: store, catalog: cat, workflow: wf, notifier: notifier, employer: employer}
	for range workers {
		w, err := store.CreateProfile(ctx, marketplace.RoleWorker, profiles.Attributes{DisplayName: "Emeka Okafor", Location: "Lagos", Skills: []string{"Tiling"}})
		if err != nil {
			t.Fatalf("creating worker: %v", err)
		}
		f.workers = append(f.workers, w)
	}

	f.job, err = cat.PostJob(ctx, employer.ID, marketplace.JobAttributes{
		Title:    "Experienced Tiler Needed",
		Location: "Lagos",
		Wage:     marketplace.Wage{Amount: 1500000},
		Skills:   []string{"Tiling"},
	})
	if err != nil {
		t.Fatalf("posting job: %v", err)
	}
	return f
}

func TestApply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	app, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != marketplace.StatusPending || app.DecidedAt != nil {
		t.Fatalf("unexpected application: %+v", app)
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != notify.KindApplicationReceived {
		t.Fatalf("unexpected events: %v", kinds)
	}
	received := f.notifier.events[0].(notify.ApplicationReceived)
	if received.WorkerName != "Emeka Okafor" || received.EmployerID != f.employer.ID {
		t.Fatalf("unexpected event payload: %+v", received)
	}

	if _, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID); !marketplace.Is(err, marketplace.KindConflict) {
		t.Fatalf("expected conflict on duplicate apply, got %v", err)
	}
}

func TestApplyErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)

	if _, err := f.workflow.Apply(f.ctx, "missing", f.workers[0].ID); !marketplace.Is(err, marketplace.KindNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
	if _, err := f.workflow.Apply(f.ctx, f.job.ID, "ghost"); !marketplace.Is(err, marketplace.KindNotFound) {
		t.Fatalf("expected not found for unknown worker, got %v", err)
	}
	if _, err := f.workflow.Apply(f.ctx, f.job.ID, f.employer.ID); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error for employer, got %v", err)
	}
	if _, err := f.workflow.Apply(f.ctx, "", ""); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := f.catalog.MarkFilled(f.ctx, f.job.ID, f.employer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected state error for filled job, got %v", err)
	}
}

func TestConcurrentApplyCreatesOneApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)

	var created, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
			switch {
			case err == nil:
				created.Add(1)
			case marketplace.Is(err, marketplace.KindConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 || conflicts.Load() != 19 {
		t.Fatalf("expected 1 created and 19 conflicts, got %d and %d", created.Load(), conflicts.Load())
	}
}

func TestReviewAndDecide(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	first, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
	second, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[1].ID)

	if _, err := f.workflow.MarkReviewed(f.ctx, first.ID, "someone-else"); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	reviewed, err := f.workflow.MarkReviewed(f.ctx, first.ID, f.employer.ID)
	if err != nil || reviewed.Status != marketplace.StatusReviewed {
		t.Fatalf("unexpected review result: %+v %v", reviewed, err)
	}
	if _, err := f.workflow.MarkReviewed(f.ctx, first.ID, f.employer.ID); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected state error on second review, got %v", err)
	}

	if _, err := f.workflow.Decide(f.ctx, first.ID, f.employer.ID, "maybe"); !marketplace.Is(err, marketplace.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	accepted, err := f.workflow.Decide(f.ctx, first.ID, f.employer.ID, marketplace.OutcomeAccept)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != marketplace.StatusAccepted || accepted.DecidedAt == nil {
		t.Fatalf("unexpected accepted application: %+v", accepted)
	}

	job, _ := f.catalog.Get(f.ctx, f.job.ID)
	if !job.Filled {
		t.Fatalf("expected job to be filled after acceptance")
	}
	employer, _ := f.profiles.GetProfile(f.ctx, f.employer.ID)
	if employer.TotalHires != 1 {
		t.Fatalf("expected hire to be recorded, got %d", employer.TotalHires)
	}
	worker, _ := f.profiles.GetProfile(f.ctx, f.workers[0].ID)
	if worker.CompletedJobs != 1 {
		t.Fatalf("expected completed job to be recorded, got %d", worker.CompletedJobs)
	}

	if _, err := f.workflow.Decide(f.ctx, second.ID, f.employer.ID, marketplace.OutcomeAccept); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected state error when accepting into a filled job, got %v", err)
	}
	stillPending, _ := f.workflow.repo.Get(f.ctx, second.ID)
	if stillPending.Status != marketplace.StatusPending {
		t.Fatalf("expected failed acceptance to leave application pending, got %s", stillPending.Status)
	}

	rejected, err := f.workflow.Decide(f.ctx, second.ID, f.employer.ID, marketplace.OutcomeReject)
	if err != nil || rejected.Status != marketplace.StatusRejected {
		t.Fatalf("unexpected reject result: %+v %v", rejected, err)
	}

	if _, err := f.workflow.Decide(f.ctx, first.ID, f.employer.ID, marketplace.OutcomeReject); !marketplace.Is(err, marketplace.KindState) {
		t.Fatalf("expected terminal application to reject transitions, got %v", err)
	}
	unchanged, err := f.workflow.repo.Get(f.ctx, first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unchanged.Status != marketplace.StatusAccepted || unchanged.DecidedAt == nil || !unchanged.DecidedAt.Equal(*accepted.DecidedAt) {
		t.Fatalf("expected terminal application to keep status and decision time, got %+v", unchanged)
	}

	kinds := f.notifier.kinds()
	decided := 0
	for _, k := range kinds {
		if k == notify.KindApplicationDecided {
			decided++
		}
	}
	if decided != 2 {
		t.Fatalf("expected 2 decision events, got %v", kinds)
	}
}

func TestConcurrentAcceptanceFillsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	apps := make([]*marketplace.Application, 0, len(f.workers))
	for _, w := range f.workers {
		app, err := f.workflow.Apply(f.ctx, f.job.ID, w.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		apps = append(apps, app)
	}

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for _, app := range apps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.workflow.Decide(f.ctx, app.ID, f.employer.ID, marketplace.OutcomeAccept); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted.Load())
	}
}

func TestListOrdering(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	first, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
	second, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[1].ID)

	seq, err := f.workflow.ListForJob(f.ctx, f.job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for app := range seq {
		ids = append(ids, app.ID)
	}
	if len(ids) != 2 || ids[0] != second.ID || ids[1] != first.ID {
		t.Fatalf("expected most recent first, got %v", ids)
	}

	seq, _ = f.workflow.ListForWorker(f.ctx, f.workers[0].ID)
	count := 0
	for app := range seq {
		count++
		if app.WorkerID != f.workers[0].ID {
			t.Fatalf("unexpected worker: %s", app.WorkerID)
		}
	}
	if count != 1 {
		t.Fatalf("expected 1 application, got %d", count)
	}
}

func TestJobClosureWaitsForInFlightApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		close func(f *fixture) error
	}{
		{
			name: "fill",
			close: func(f *fixture) error {
				_, err := f.catalog.MarkFilled(f.ctx, f.job.ID, f.employer.ID)
				return err
			},
		},
		{
			name: "archive",
			close: func(f *fixture) error {
				_, err := f.catalog.Archive(f.ctx, f.job.ID, f.employer.ID)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newBlockingRepository()
			f := newFixtureWithRepository(t, 2, repo)

			applied := make(chan error, 1)
			go func() {
				_, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
				applied <- err
			}()
			<-repo.entered

			closed := make(chan error, 1)
			go func() { closed <- tt.close(f) }()

			select {
			case err := <-closed:
				t.Fatalf("%s returned while an apply held the job: %v", tt.name, err)
			case <-time.After(50 * time.Millisecond):
			}

			close(repo.release)
			if err := <-applied; err != nil {
				t.Fatalf("unexpected apply error: %v", err)
			}
			if err := <-closed; err != nil {
				t.Fatalf("unexpected %s error: %v", tt.name, err)
			}

			if _, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[1].ID); !marketplace.Is(err, marketplace.KindState) {
				t.Fatalf("expected state error after %s, got %v", tt.name, err)
			}
			counts, err := f.workflow.CountForJob(f.ctx, f.job.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if counts.Total != 1 {
				t.Fatalf("expected only the in-flight application, got %d", counts.Total)
			}
		})
	}
}

func TestDecideRevertsFillWhenUpdateFails(t *testing.T) {
	t.Parallel()

	repo := &failingUpdateRepository{MemoryRepository: NewMemoryRepository()}
	f := newFixtureWithRepository(t, 1, repo)
	core, logs := observer.New(zap.WarnLevel)
	f.workflow.logger = zap.New(core)

	app, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.fail.Store(true)
	if _, err := f.workflow.Decide(f.ctx, app.ID, f.employer.ID, marketplace.OutcomeAccept); err == nil {
		t.Fatalf("expected update failure to surface")
	}

	job, _ := f.catalog.Get(f.ctx, f.job.ID)
	if job.Filled || job.FilledAt != nil {
		t.Fatalf("expected fill to be reverted, got %+v", job)
	}
	pending, _ := f.workflow.repo.Get(f.ctx, app.ID)
	if pending.Status != marketplace.StatusPending {
		t.Fatalf("expected application to stay pending, got %s", pending.Status)
	}
	if logs.FilterMessage("job fill reverted").Len() != 1 {
		t.Fatalf("expected revert to be logged, got %v", logs.All())
	}
	employer, _ := f.profiles.GetProfile(f.ctx, f.employer.ID)
	if employer.TotalHires != 0 {
		t.Fatalf("expected no hire for a failed acceptance, got %d", employer.TotalHires)
	}

	repo.fail.Store(false)
	accepted, err := f.workflow.Decide(f.ctx, app.ID, f.employer.ID, marketplace.OutcomeAccept)
	if err != nil || accepted.Status != marketplace.StatusAccepted {
		t.Fatalf("expected retry to succeed: %+v %v", accepted, err)
	}
}

func TestHasApplied(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	applied, err := f.workflow.HasApplied(f.ctx, f.job.ID, f.workers[0].ID)
	if err != nil || applied {
		t.Fatalf("expected no application yet: %v %v", applied, err)
	}

	if _, err := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applied, err = f.workflow.HasApplied(f.ctx, f.job.ID, f.workers[0].ID)
	if err != nil || !applied {
		t.Fatalf("expected application to be found: %v %v", applied, err)
	}
}

func TestCountForJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	var apps []*marketplace.Application
	for _, w := range f.workers {
		app, err := f.workflow.Apply(f.ctx, f.job.ID, w.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		apps = append(apps, app)
	}
	if _, err := f.workflow.Decide(f.ctx, apps[0].ID, f.employer.ID, marketplace.OutcomeReject); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.workflow.MarkReviewed(f.ctx, apps[1].ID, f.employer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts, err := f.workflow.CountForJob(f.ctx, f.job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[marketplace.Status]int{
		marketplace.StatusPending:  1,
		marketplace.StatusReviewed: 1,
		marketplace.StatusAccepted: 0,
		marketplace.StatusRejected: 1,
	}
	if counts.Total != 3 {
		t.Fatalf("expected 3 applications, got %d", counts.Total)
	}
	for status, n := range want {
		if counts.ByStatus[status] != n {
			t.Fatalf("expected %d %s, got %v", n, status, counts.ByStatus)
		}
	}

	if _, err := f.workflow.CountForJob(f.ctx, "missing"); !marketplace.Is(err, marketplace.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	if _, err := f.catalog.PostJob(f.ctx, f.employer.ID, marketplace.JobAttributes{
		Title:    "Warehouse Helper",
		Location: "Ikeja",
		Wage:     marketplace.Wage{Amount: 650000},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	archived, err := f.catalog.PostJob(f.ctx, f.employer.ID, marketplace.JobAttributes{
		Title:    "Painting Assistant",
		Location: "Victoria Island",
		Wage:     marketplace.Wage{Amount: 700000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	early, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[0].ID)
	late, _ := f.workflow.Apply(f.ctx, f.job.ID, f.workers[1].ID)
	if _, err := f.workflow.Apply(f.ctx, archived.ID, f.workers[2].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.workflow.Decide(f.ctx, late.ID, f.employer.ID, marketplace.OutcomeAccept); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.catalog.Archive(f.ctx, archived.ID, f.employer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := f.workflow.Summary(f.ctx, f.employer.ID, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all.ActiveJobs != 1 || all.Applications != 3 || all.Hires != 1 || all.Since != nil {
		t.Fatalf("unexpected summary: %+v", all)
	}

	recent, err := f.workflow.Summary(f.ctx, f.employer.ID, early.AppliedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recent.ActiveJobs != 1 || recent.Applications != 2 || recent.Hires != 1 || recent.Since == nil {
		t.Fatalf("unexpected windowed summary: %+v", recent)
	}

	if _, err := f.workflow.Summary(f.ctx, f.workers[0].ID, time.Time{}); !marketplace.Is(err, marketplace.KindAuthorization) {
		t.Fatalf("expected authorization error for a worker, got %v", err)
	}
}
