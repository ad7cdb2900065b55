package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
)

type memStore struct {
	mu sync.Mutex
	kv map[string][]byte
}

func newMemStore() *memStore { return &memStore{kv: make(map[string][]byte)} }

func (s *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.kv[key]
	return value, ok, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *memStore) Close() error { return nil }

type stubChannel struct {
	frames    chan domain.Frame
	states    chan domain.ConnectionState
	closeOnce sync.Once
}

func (c *stubChannel) Frames() <-chan domain.Frame           { return c.frames }
func (c *stubChannel) States() <-chan domain.ConnectionState { return c.states }

func (c *stubChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.frames)
		close(c.states)
	})
}

type stubDialer struct {
	mu       sync.Mutex
	channels []*stubChannel
}

func (d *stubDialer) Open(ctx context.Context, sessionID string) (ports.LiveChannel, error) {
	ch := &stubChannel{
		frames: make(chan domain.Frame, 16),
		states: make(chan domain.ConnectionState, 16),
	}
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	return ch, nil
}

func newBackendStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/escalated", func(w http.ResponseWriter, r *http.Request) {
		id := "JIRA-1"
		json.NewEncoder(w).Encode([]domain.TicketRecord{{
			JiraIssueID:   &id,
			SessionID:     "session-1",
			Summary:       "Login broken",
			AwaitingHuman: true,
		}})
	})
	mux.HandleFunc("GET /chat/history/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"messages": []domain.Message{}})
	})
	mux.HandleFunc("POST /tickets/reply", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestConsole_StartSeedsQueueAndShutsDown(t *testing.T) {
	backend := newBackendStub(t)

	console, err := New(
		WithBackendURL(backend.URL),
		WithListenAddr("127.0.0.1:0"),
		WithSettingsStore(newMemStore()),
		WithChannelDialer(&stubDialer{}),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := console.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, ok := console.Queue().Get("JIRA-1"); !ok {
		t.Fatal("startup should seed the queue from the backend")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := console.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConsole_StartSurvivesBackendOutage(t *testing.T) {
	console, err := New(
		WithBackendURL("http://127.0.0.1:1"),
		WithListenAddr("127.0.0.1:0"),
		WithSettingsStore(newMemStore()),
		WithChannelDialer(&stubDialer{}),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := console.Start(context.Background()); err != nil {
		t.Fatalf("Start should not fail on backend outage: %v", err)
	}
	if got := len(console.Queue().Items()); got != 0 {
		t.Fatalf("queue should start empty, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := console.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConsole_OptionValidation(t *testing.T) {
	if _, err := New(WithBackendURL("")); err == nil {
		t.Fatal("empty backend url should be rejected")
	}
}
