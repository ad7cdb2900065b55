// Package escalation keeps the operator queue current: it seeds the
// queue from the backend's escalated-ticket list and listens on a
// console-wide live channel for ticket_escalated broadcasts.
package escalation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/issues"
	"github.com/gamedesk/helpdesk-console/internal/metrics"
)

// sessionPrefix identifies the console's own broadcast subscription,
// distinct from per-conversation channels.
const sessionPrefix = "agent-console-"

// Service owns the broadcast subscription and the list refresh. One
// Service runs per console process.
type Service struct {
	dialer    ports.ChannelDialer
	lister    ports.TicketLister
	queue     *issues.Queue
	notifier  ports.Notifier
	logger    *slog.Logger
	now       func() time.Time
	sessionID string
}

// New builds a Service with a fresh broadcast session id.
func New(dialer ports.ChannelDialer, lister ports.TicketLister, queue *issues.Queue, notifier ports.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dialer:    dialer,
		lister:    lister,
		queue:     queue,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		sessionID: sessionPrefix + uuid.New().String(),
	}
}

// SessionID returns the id the broadcast channel is keyed by.
func (s *Service) SessionID() string {
	return s.sessionID
}

// RefreshQueue replaces the queue with the backend's current escalated
// list. Untracked tickets are dropped; a broadcast that lands while
// the fetch is in flight survives the replacement.
func (s *Service) RefreshQueue(ctx context.Context) error {
	token := s.queue.RefreshToken()

	records, err := s.lister.EscalatedTickets(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	items := make([]domain.Issue, 0, len(records))
	for _, rec := range records {
		if !rec.Tracked() {
			s.logger.Debug("skipping untracked ticket", "session_id", rec.SessionID)
			continue
		}
		items = append(items, rec.ToIssue(rec.QueueStatus(), now))
	}

	s.queue.ApplyRefresh(token, items)
	s.logger.Info("issue queue refreshed", "count", len(items))
	return nil
}

// Run opens the broadcast channel and consumes escalation frames until
// the context is cancelled or the channel is torn down. Chat frames on
// this channel have no conversation attached and are dropped.
func (s *Service) Run(ctx context.Context) error {
	ch, err := s.dialer.Open(ctx, s.sessionID)
	if err != nil {
		return err
	}
	defer ch.Close()

	s.logger.Info("escalation listener started", "session_id", s.sessionID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-ch.Frames():
			if !ok {
				return nil
			}
			if frame.Kind != domain.FrameEscalation {
				continue
			}
			s.accept(frame.Ticket)
		}
	}
}

// accept applies one broadcast ticket to the queue.
func (s *Service) accept(rec domain.TicketRecord) {
	if !rec.Tracked() {
		s.logger.Debug("ignoring untracked escalation", "session_id", rec.SessionID)
		return
	}

	issue := rec.ToIssue(domain.IssueStatusEscalated, s.now())
	if !s.queue.Insert(issue) {
		metrics.EscalationsDeduplicated.Inc()
		s.logger.Debug("duplicate escalation dropped", "issue_id", issue.ID)
		return
	}

	metrics.EscalationsAccepted.Inc()
	s.logger.Info("escalation accepted", "issue_id", issue.ID, "conversation_id", issue.ConversationID)
	if s.notifier != nil {
		s.notifier.Success("New escalated ticket: " + issue.Title)
	}
}
