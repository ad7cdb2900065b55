// Package notify implements the operator-facing notification center.
// Notices are toast-style and non-blocking: they are logged, kept in a
// bounded recent-history ring for the read surface, and never require
// acknowledgement.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
)

// Notice is one surfaced notification.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Center records notices and mirrors them to the logger. It retains
// the most recent `capacity` notices, newest first.
type Center struct {
	logger   *slog.Logger
	capacity int

	mu      sync.Mutex
	recent  []Notice
	nowFunc func() time.Time
}

const defaultCapacity = 50

// NewCenter creates a notification center retaining the default number
// of recent notices.
func NewCenter(logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		logger:   logger,
		capacity: defaultCapacity,
		nowFunc:  time.Now,
	}
}

// Success surfaces a success notice.
func (c *Center) Success(message string) {
	c.add(LevelSuccess, message)
	c.logger.Info("notification", slog.String("level", string(LevelSuccess)), slog.String("message", message))
}

// Failure surfaces a failure notice.
func (c *Center) Failure(message string) {
	c.add(LevelFailure, message)
	c.logger.Warn("notification", slog.String("level", string(LevelFailure)), slog.String("message", message))
}

func (c *Center) add(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recent = append([]Notice{{Level: level, Message: message, At: c.nowFunc()}}, c.recent...)
	if len(c.recent) > c.capacity {
		c.recent = c.recent[:c.capacity]
	}
}

// Recent returns the retained notices, newest first.
func (c *Center) Recent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notice, len(c.recent))
	copy(out, c.recent)
	return out
}
