// Package runtime assembles the helpdesk console: configuration, the
// backend client, the live-channel layer, the issue queue, and the
// local HTTP surface. It can be embedded in larger applications or run
// standalone.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gamedesk/helpdesk-console/internal/backend"
	"github.com/gamedesk/helpdesk-console/internal/config"
	"github.com/gamedesk/helpdesk-console/internal/conversation"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/dispatch"
	"github.com/gamedesk/helpdesk-console/internal/escalation"
	"github.com/gamedesk/helpdesk-console/internal/issues"
	"github.com/gamedesk/helpdesk-console/internal/livewire"
	"github.com/gamedesk/helpdesk-console/internal/notify"
	"github.com/gamedesk/helpdesk-console/internal/server"
	"github.com/gamedesk/helpdesk-console/internal/settings"
)

// Console is the main entry point for running the helpdesk console.
type Console struct {
	// Option state, resolved in Start.
	configPath    string
	backendURL    string
	listenAddr    string
	store         ports.SettingsStore
	dialer        ports.ChannelDialer
	extraNotifier ports.Notifier
	logger        *slog.Logger

	// Assembled components.
	provider      *config.Provider
	client        *backend.Client
	liveDialer    *livewire.Dialer
	queue         *issues.Queue
	notices       *notify.Center
	escalations   *escalation.Service
	conversations *conversation.Manager
	dispatcher    *dispatch.Dispatcher
	httpServer    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a Console with the given options. Nothing connects until
// Start.
func New(opts ...Option) (*Console, error) {
	c := &Console{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return c, nil
}

// Start loads configuration, connects the escalation broadcast
// channel, seeds the issue queue, and starts the local HTTP surface.
func (c *Console) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.provider = config.NewProvider(c.configPath, c.logger)
	cfg, err := c.provider.Load(c.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.backendURL != "" {
		cfg.Backend.BaseURL = c.backendURL
		cfg.Backend.WSURL = ""
	}
	if c.listenAddr != "" {
		cfg.Server.Addr = c.listenAddr
	}
	cfg.Normalize()

	if c.store == nil {
		store, err := settings.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open settings store: %w", err)
		}
		c.store = store
	}

	c.notices = notify.NewCenter(c.logger)
	var notifier ports.Notifier = c.notices
	if c.extraNotifier != nil {
		notifier = teeNotifier{c.notices, c.extraNotifier}
	}

	c.client = backend.NewClient(cfg.Backend.BaseURL,
		backend.WithAgentName(cfg.Backend.AgentName),
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Sync.RequestTimeout}),
		backend.WithLogger(c.logger),
	)

	if c.dialer == nil {
		c.liveDialer = livewire.NewDialer(cfg.Backend.WSURL,
			livewire.WithReconnectDelay(func() time.Duration {
				return c.provider.Current().Sync.ReconnectDelay
			}),
			livewire.WithLogger(c.logger),
		)
		c.dialer = c.liveDialer
	}

	c.queue = issues.NewQueue()
	c.conversations = conversation.NewManager(c.client, c.dialer, c.logger)
	c.escalations = escalation.New(c.dialer, c.client, c.queue, notifier, c.logger)
	c.dispatcher = dispatch.New(c.client, notifier, c.afterSend, c.logger)

	// Seed the queue before serving. A backend outage at startup is
	// survivable; the queue stays empty until a refresh succeeds.
	if err := c.escalations.RefreshQueue(c.ctx); err != nil {
		c.logger.Warn("initial queue refresh failed", "error", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.escalations.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("escalation listener stopped", "error", err)
		}
	}()

	srv := server.New(server.Deps{
		Queue:         c.queue,
		Escalations:   c.escalations,
		Conversations: c.conversations,
		Dispatcher:    c.dispatcher,
		Agents:        settings.NewAgents(c.store),
		Documents:     settings.NewDocuments(c.store, c.client),
		Notices:       c.notices,
		Logger:        c.logger,
	})
	c.httpServer = &http.Server{Addr: cfg.Server.Addr, Handler: srv.Router}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("http server stopped", "error", err)
		}
	}()

	if err := c.provider.Watch(c.ctx, func(next *config.Config) {
		c.logger.Info("configuration reloaded",
			"backend", next.Backend.BaseURL,
			"reconnect_delay", next.Sync.ReconnectDelay)
	}); err != nil {
		c.logger.Warn("config watch unavailable", "error", err)
	}

	c.logger.Info("console started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("backend", cfg.Backend.BaseURL))
	return nil
}

// afterSend runs once per accepted reply: the conversation's durable
// history is re-fetched and the queue is refreshed so status changes
// triggered by the reply become visible.
func (c *Console) afterSend(conversationID string) {
	if view := c.conversations.Active(); view != nil && view.ID() == conversationID {
		view.Refetch(c.ctx)
	}
	if err := c.escalations.RefreshQueue(c.ctx); err != nil {
		c.logger.Warn("queue refresh after send failed", "error", err)
	}
}

// Shutdown stops the console gracefully.
func (c *Console) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("shutting down console")

	if c.cancel != nil {
		c.cancel()
	}
	if c.conversations != nil {
		c.conversations.CloseActive()
	}
	if c.liveDialer != nil {
		c.liveDialer.CloseAll()
	}

	var firstErr error
	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			c.logger.Error("failed to shutdown http server", "error", err)
			firstErr = err
		}
	}

	c.wg.Wait()

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("failed to close settings store", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if c.provider != nil {
		if err := c.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.logger.Info("console shutdown complete")
	return firstErr
}

// Addr returns the configured listen address once started.
func (c *Console) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpServer == nil {
		return ""
	}
	return c.httpServer.Addr
}

// Queue exposes the issue queue to embedding applications.
func (c *Console) Queue() *issues.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// Notices exposes the notification center to embedding applications.
func (c *Console) Notices() *notify.Center {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notices
}

// teeNotifier fans notices out to both sinks.
type teeNotifier struct {
	primary ports.Notifier
	extra   ports.Notifier
}

func (t teeNotifier) Success(message string) {
	t.primary.Success(message)
	t.extra.Success(message)
}

func (t teeNotifier) Failure(message string) {
	t.primary.Failure(message)
	t.extra.Failure(message)
}
