package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/joblink/internal/marketplace"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingListener) Name() string { return "recording" }

func (r *recordingListener) Handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type funcListener struct {
	name string
	fn   func(ctx context.Context, e Event) error
}

func (f funcListener) Name() string                              { return f.name }
func (f funcListener) Handle(ctx context.Context, e Event) error { return f.fn(ctx, e) }

func posted(id string) JobPosted {
	return JobPosted{JobID: id, EmployerID: "employer-1", Title: "Tiler", At: time.Now()}
}

func TestDispatcherIsolatesFailingListeners(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	recorder := &recordingListener{}

	failing := funcListener{name: "failing", fn: func(context.Context, Event) error { return errors.New("smtp down") }}
	panicking := funcListener{name: "panicking", fn: func(context.Context, Event) error { panic("boom") }}

	d := NewDispatcher(10, zap.New(core), failing, panicking, recorder)
	d.Notify(posted("1"))
	d.Notify(posted("2"))

	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorder.count() != 2 {
		t.Fatalf("expected 2 delivered events, got %d", recorder.count())
	}
	if n := observed.FilterMessage("notification listener failed").Len(); n != 2 {
		t.Fatalf("expected 2 failure logs, got %d", n)
	}
	if n := observed.FilterMessage("notification listener panicked").Len(); n != 2 {
		t.Fatalf("expected 2 panic logs, got %d", n)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	blocking := funcListener{name: "blocking", fn: func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	recorder := &recordingListener{}

	d := NewDispatcher(1, zap.New(core), blocking, recorder)
	d.Notify(posted("in-flight"))
	<-started

	d.Notify(posted("queued"))
	d.Notify(posted("dropped"))

	close(release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorder.count() != 2 {
		t.Fatalf("expected 2 delivered events, got %d", recorder.count())
	}
	if observed.FilterMessage("notification queue is full, dropping event").Len() != 1 {
		t.Fatalf("expected drop to be logged")
	}

	d.Notify(posted("after close"))
	if observed.FilterMessage("dispatcher closed, dropping event").Len() != 1 {
		t.Fatalf("expected notify after close to be dropped")
	}
}

func TestEventNotifications(t *testing.T) {
	t.Parallel()

	received := ApplicationReceived{JobID: "j", JobTitle: "House Cleaner", WorkerID: "w", WorkerName: "Kemi", EmployerID: "e"}
	msgs := received.Notifications()
	if len(msgs) != 2 || msgs[0].Recipient != "w" || msgs[1].Recipient != "e" {
		t.Fatalf("unexpected recipients: %+v", msgs)
	}
	if msgs[0].Title != "Application Submitted!" || msgs[0].Description != "Your application for House Cleaner has been sent to the employer." {
		t.Fatalf("unexpected worker message: %+v", msgs[0])
	}

	accepted := ApplicationDecided{JobTitle: "Tiler", WorkerID: "w", WorkerName: "Emeka", EmployerID: "e", Status: marketplace.StatusAccepted}
	msgs = accepted.Notifications()
	if msgs[1].Title != "Applicant Accepted!" || msgs[1].Description != "Emeka has been notified and the job has been filled." {
		t.Fatalf("unexpected employer message: %+v", msgs[1])
	}

	rejected := ApplicationDecided{JobTitle: "Tiler", WorkerID: "w", EmployerID: "e", Status: marketplace.StatusRejected}
	msgs = rejected.Notifications()
	if msgs[1].Title != "Applicant Declined" || msgs[1].Description != "The applicant has been notified of your decision." {
		t.Fatalf("unexpected employer message: %+v", msgs[1])
	}

	if posted("x").Notifications()[0].Title != "Job Posted Successfully!" {
		t.Fatalf("unexpected job posted title")
	}
}

func TestInboxBoundedNewestFirst(t *testing.T) {
	t.Parallel()

	inbox := NewInbox(2)
	for _, id := range []string{"1", "2", "3"} {
		if err := inbox.Handle(context.Background(), posted(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := inbox.List("employer-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].JobID != "3" || got[1].JobID != "2" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if empty := inbox.List("nobody"); empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list")
	}
}

func TestWebhookPostsEnvelope(t *testing.T) {
	t.Parallel()

	var received envelope
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "secret", nil)
	if err := hook.Handle(context.Background(), posted("9")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header: %q", auth)
	}
	if received.Kind != KindJobPosted || len(received.Notifications) != 1 || received.Notifications[0].JobID != "9" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestWebhookBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, "", nil).Handle(context.Background(), posted("1")); err == nil {
		t.Fatalf("expected error on bad status")
	}
}

type fakePublisher struct {
	channel string
	message any
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func TestRedisPublisher(t *testing.T) {
	t.Parallel()

	fake := &fakePublisher{}
	p := &RedisPublisher{client: fake, channel: "events"}
	if err := p.Handle(context.Background(), posted("5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.channel != "events" {
		t.Fatalf("unexpected channel: %s", fake.channel)
	}
	payload, ok := fake.message.([]byte)
	if !ok {
		t.Fatalf("expected byte payload, got %T", fake.message)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Kind != KindJobPosted {
		t.Fatalf("unexpected payload: %s %v", payload, err)
	}

	failing := &RedisPublisher{client: &fakePublisher{err: errors.New("connection refused")}, channel: "events"}
	if err := failing.Handle(context.Background(), posted("5")); err == nil {
		t.Fatalf("expected publish error")
	}
}
