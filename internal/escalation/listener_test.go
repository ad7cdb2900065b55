package escalation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/issues"
)

type fakeChannel struct {
	frames chan domain.Frame
	states chan domain.ConnectionState
	closed chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		frames: make(chan domain.Frame, 16),
		states: make(chan domain.ConnectionState, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Frames() <-chan domain.Frame           { return c.frames }
func (c *fakeChannel) States() <-chan domain.ConnectionState { return c.states }
func (c *fakeChannel) Close()                                { close(c.closed) }

type fakeDialer struct {
	ch        *fakeChannel
	sessionID string
	err       error
}

func (d *fakeDialer) Open(ctx context.Context, sessionID string) (ports.LiveChannel, error) {
	d.sessionID = sessionID
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

type fakeLister struct {
	records []domain.TicketRecord
	err     error
	calls   int
}

func (l *fakeLister) EscalatedTickets(ctx context.Context) ([]domain.TicketRecord, error) {
	l.calls++
	return l.records, l.err
}

type recordingNotifier struct {
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(message string) { n.successes = append(n.successes, message) }
func (n *recordingNotifier) Failure(message string) { n.failures = append(n.failures, message) }

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func tracked(id, session, summary string, awaiting bool) domain.TicketRecord {
	return domain.TicketRecord{
		JiraIssueID:   &id,
		SessionID:     session,
		Summary:       summary,
		AwaitingHuman: awaiting,
	}
}

func TestService_RefreshQueueFiltersUntracked(t *testing.T) {
	lister := &fakeLister{records: []domain.TicketRecord{
		tracked("JIRA-1", "session-1", "Crash during raid", true),
		{SessionID: "session-2", Summary: "No tracker id"},
		tracked("JIRA-3", "session-3", "Purchase missing", false),
	}}
	queue := issues.NewQueue()
	svc := New(nil, lister, queue, nil, discard())

	if err := svc.RefreshQueue(context.Background()); err != nil {
		t.Fatalf("RefreshQueue: %v", err)
	}

	items := queue.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].ID != "JIRA-1" || items[0].Status != domain.IssueStatusEscalated {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].ID != "JIRA-3" || items[1].Status != domain.IssueStatusAI {
		t.Fatalf("items[1] = %+v", items[1])
	}
}

func TestService_RefreshQueuePropagatesFetchError(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend down")}
	queue := issues.NewQueue()
	queue.Insert(domain.Issue{ID: "JIRA-1"})
	svc := New(nil, lister, queue, nil, discard())

	if err := svc.RefreshQueue(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(queue.Items()) != 1 {
		t.Fatal("failed refresh must leave the queue untouched")
	}
}

func TestService_RunAcceptsAndNotifies(t *testing.T) {
	ch := newFakeChannel()
	dialer := &fakeDialer{ch: ch}
	queue := issues.NewQueue()
	notifier := &recordingNotifier{}
	svc := New(dialer, nil, queue, notifier, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	ch.frames <- domain.Frame{
		Kind:   domain.FrameEscalation,
		Ticket: tracked("JIRA-5", "session-5", "Ticket 5", true),
	}
	close(ch.frames)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(dialer.sessionID, sessionPrefix) {
		t.Fatalf("session id = %q, want %s prefix", dialer.sessionID, sessionPrefix)
	}

	items := queue.Items()
	if len(items) != 1 || items[0].ID != "JIRA-5" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Status != domain.IssueStatusEscalated {
		t.Fatalf("status = %s, want escalated", items[0].Status)
	}
	if len(notifier.successes) != 1 || !strings.Contains(notifier.successes[0], "Ticket 5") {
		t.Fatalf("successes = %v", notifier.successes)
	}

	select {
	case <-ch.closed:
	case <-time.After(time.Second):
		t.Fatal("Run should close the channel on exit")
	}
}

func TestService_RunDeduplicatesByID(t *testing.T) {
	ch := newFakeChannel()
	queue := issues.NewQueue()
	notifier := &recordingNotifier{}
	svc := New(&fakeDialer{ch: ch}, nil, queue, notifier, discard())

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	frame := domain.Frame{
		Kind:   domain.FrameEscalation,
		Ticket: tracked("JIRA-5", "session-5", "Ticket 5", true),
	}
	ch.frames <- frame
	ch.frames <- frame
	close(ch.frames)
	<-done

	if got := len(queue.Items()); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
	if got := len(notifier.successes); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}

func TestService_RunIgnoresChatAndUntrackedFrames(t *testing.T) {
	ch := newFakeChannel()
	queue := issues.NewQueue()
	svc := New(&fakeDialer{ch: ch}, nil, queue, &recordingNotifier{}, discard())

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	ch.frames <- domain.Frame{Kind: domain.FrameChat, Message: domain.Message{Sender: "AI", Content: "hi"}}
	ch.frames <- domain.Frame{Kind: domain.FrameEscalation, Ticket: domain.TicketRecord{SessionID: "session-9"}}
	close(ch.frames)
	<-done

	if got := len(queue.Items()); got != 0 {
		t.Fatalf("len = %d, want 0", got)
	}
}

func TestService_RunStopsOnCancel(t *testing.T) {
	ch := newFakeChannel()
	svc := New(&fakeDialer{ch: ch}, nil, issues.NewQueue(), nil, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestService_RunReturnsDialError(t *testing.T) {
	svc := New(&fakeDialer{err: errors.New("dial failed")}, nil, issues.NewQueue(), nil, discard())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}
