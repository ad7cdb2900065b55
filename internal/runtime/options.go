package runtime

import (
	"fmt"
	"log/slog"

	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/settings"
)

// Option is a functional option for configuring a Console.
type Option func(*Console) error

// WithFileConfig points the console at a YAML config file watched for
// changes. Without it, environment variables and defaults apply.
func WithFileConfig(path string) Option {
	return func(c *Console) error {
		c.configPath = path
		return nil
	}
}

// WithBackendURL overrides the support backend's base URL.
func WithBackendURL(baseURL string) Option {
	return func(c *Console) error {
		if baseURL == "" {
			return fmt.Errorf("backend url must not be empty")
		}
		c.backendURL = baseURL
		return nil
	}
}

// WithListenAddr overrides the local HTTP listen address.
func WithListenAddr(addr string) Option {
	return func(c *Console) error {
		c.listenAddr = addr
		return nil
	}
}

// WithSQLite stores operator settings in a SQLite file at path
// (default for single-instance deployments).
func WithSQLite(path string) Option {
	return func(c *Console) error {
		store, err := settings.Open(path)
		if err != nil {
			return fmt.Errorf("open settings store: %w", err)
		}
		c.store = store
		return nil
	}
}

// WithSettingsStore injects a custom settings store implementation.
func WithSettingsStore(store ports.SettingsStore) Option {
	return func(c *Console) error {
		c.store = store
		return nil
	}
}

// WithChannelDialer injects a custom live-channel dialer. Mostly
// useful in tests.
func WithChannelDialer(dialer ports.ChannelDialer) Option {
	return func(c *Console) error {
		c.dialer = dialer
		return nil
	}
}

// WithNotifier mirrors operator notices to an additional sink beyond
// the built-in notification center.
func WithNotifier(notifier ports.Notifier) Option {
	return func(c *Console) error {
		c.extraNotifier = notifier
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) error {
		c.logger = logger
		return nil
	}
}
