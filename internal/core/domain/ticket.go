package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus mirrors the states the support backend exposes for a
// ticket in the operator queue.
type IssueStatus string

const (
	IssueStatusNew       IssueStatus = "new"
	IssueStatusEscalated IssueStatus = "escalated"
	IssueStatusClosed    IssueStatus = "closed"
	IssueStatusAI        IssueStatus = "ai"
)

// IssuePriority is the coarse priority bucket shown in the queue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// Fallbacks applied when the backend omits fields from a ticket
// payload. The queue must stay usable with incomplete data, so a
// partial record is filled in rather than rejected.
const (
	FallbackTitle       = "No Summary Provided"
	FallbackDescription = "No description available."
	FallbackRequester   = "Unknown Player"
	FallbackCategory    = "General Support"
)

// Issue is the console's view of one support ticket. ID is the
// external tracker id when the backend supplies one; ConversationID is
// the session whose message timeline the ticket is about.
type Issue struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Status         IssueStatus   `json:"status"`
	Priority       IssuePriority `json:"priority"`
	Requester      string        `json:"requester"`
	ConversationID string        `json:"conversation_id"`
	Category       string        `json:"category"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TicketRecord is the raw ticket summary shape the backend returns
// from GET /tickets/escalated and inside escalation broadcast frames.
// Every field can be absent.
type TicketRecord struct {
	JiraIssueID       *string `json:"jira_issue_id"`
	SessionID         string  `json:"session_id"`
	Summary           string  `json:"summary"`
	Description       string  `json:"description"`
	CreatedAt         string  `json:"created_at"`
	AwaitingHuman     bool    `json:"awaiting_human_response"`
	RequesterName     string  `json:"requester_name"`
	RequesterPriority string  `json:"priority"`
}

// Tracked reports whether the ticket carries an external-tracker id.
// Untracked tickets never enter the operator queue.
func (t TicketRecord) Tracked() bool {
	return t.JiraIssueID != nil && *t.JiraIssueID != ""
}

// ToIssue synthesizes a complete Issue from a possibly-partial backend
// record, applying explicit fallbacks for every display field. The
// status override lets escalation frames force IssueStatusEscalated
// while the ordinary list fetch maps it from awaiting_human_response.
func (t TicketRecord) ToIssue(status IssueStatus, now time.Time) Issue {
	issue := Issue{
		Title:          t.Summary,
		Description:    t.Description,
		Status:         status,
		Priority:       IssuePriorityMedium,
		Requester:      t.RequesterName,
		ConversationID: t.SessionID,
		Category:       FallbackCategory,
	}

	switch {
	case t.Tracked():
		issue.ID = *t.JiraIssueID
	case t.SessionID != "":
		issue.ID = t.SessionID
	default:
		issue.ID = "temp-" + uuid.New().String()
	}
	if issue.ConversationID == "" {
		issue.ConversationID = "unknown-user-" + uuid.New().String()
	}
	if issue.Title == "" {
		issue.Title = FallbackTitle
	}
	if issue.Description == "" {
		issue.Description = FallbackDescription
	}
	if issue.Requester == "" {
		issue.Requester = FallbackRequester
	}
	if p := IssuePriority(t.RequesterPriority); p == IssuePriorityLow || p == IssuePriorityHigh {
		issue.Priority = p
	}

	created := now
	if t.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			created = parsed
		}
	}
	issue.CreatedAt = created
	issue.UpdatedAt = created

	return issue
}

// QueueStatus maps the backend's awaiting_human_response flag onto the
// queue status used by the list fetch path.
func (t TicketRecord) QueueStatus() IssueStatus {
	if t.AwaitingHuman {
		return IssueStatusEscalated
	}
	return IssueStatusAI
}
