// Package issues holds the operator's visible ticket queue: seeded by
// the escalated-ticket fetch, mutated by escalation broadcasts, newest
// escalations first.
package issues

import (
	"strings"
	"sync"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
)

// Filter selects a queue view.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterEscalated Filter = "escalated"
	FilterActive    Filter = "active"
)

// Counts summarizes the queue for the filter tabs.
type Counts struct {
	Pending   int `json:"pending"`
	Escalated int `json:"escalated"`
	Active    int `json:"active"`
	Total     int `json:"total"`
}

// Queue is the shared issue list. Only two writers exist: the ordinary
// list refresh (Replace via ApplyRefresh) and escalation insertion
// (Insert). Both run under one lock, and a refresh that was in flight
// when an escalation arrived reinstates it, so an accepted escalation
// can never be lost to a stale snapshot.
type Queue struct {
	mu        sync.Mutex
	items     []domain.Issue
	insertLog []domain.Issue
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Insert prepends the issue unless its id is already present. It
// reports whether the issue was added.
func (q *Queue) Insert(issue domain.Issue) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.items {
		if existing.ID == issue.ID {
			return false
		}
	}

	q.items = append([]domain.Issue{issue}, q.items...)
	q.insertLog = append(q.insertLog, issue)
	return true
}

// RefreshToken marks the start of a list refresh. Pass the token to
// ApplyRefresh so inserts that happened while the fetch was in flight
// survive the replacement.
func (q *Queue) RefreshToken() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.insertLog)
}

// ApplyRefresh replaces the queue with a freshly fetched list. Issues
// inserted after the token was taken and missing from the new list are
// prepended back, newest first.
func (q *Queue) ApplyRefresh(token int, items []domain.Issue) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if token < 0 || token > len(q.insertLog) {
		token = len(q.insertLog)
	}

	next := make([]domain.Issue, 0, len(items))
	next = append(next, items...)

	late := q.insertLog[token:]
	for i := len(late) - 1; i >= 0; i-- {
		if !containsID(next, late[i].ID) {
			next = append([]domain.Issue{late[i]}, next...)
		}
	}

	q.items = next
}

// Get returns the issue with the given id.
func (q *Queue) Get(id string) (domain.Issue, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, issue := range q.items {
		if issue.ID == id {
			return issue, true
		}
	}
	return domain.Issue{}, false
}

// Items returns a copy of the visible list, newest escalations first.
func (q *Queue) Items() []domain.Issue {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Issue, len(q.items))
	copy(out, q.items)
	return out
}

// Counts returns the per-tab totals.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c Counts
	c.Total = len(q.items)
	for _, issue := range q.items {
		switch issue.Status {
		case domain.IssueStatusNew:
			c.Pending++
			c.Active++
		case domain.IssueStatusEscalated:
			c.Escalated++
			c.Active++
		case domain.IssueStatusAI:
			c.Active++
		}
	}
	return c
}

// Search returns the issues matching a case-insensitive query over
// title, description and requester, narrowed by the filter.
func (q *Queue) Search(query string, filter Filter) []domain.Issue {
	query = strings.ToLower(query)

	var out []domain.Issue
	for _, issue := range q.Items() {
		if query != "" && !matchesQuery(issue, query) {
			continue
		}
		if !matchesFilter(issue, filter) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func matchesQuery(issue domain.Issue, query string) bool {
	return strings.Contains(strings.ToLower(issue.Title), query) ||
		strings.Contains(strings.ToLower(issue.Description), query) ||
		strings.Contains(strings.ToLower(issue.Requester), query)
}

func matchesFilter(issue domain.Issue, filter Filter) bool {
	switch filter {
	case FilterPending:
		return issue.Status == domain.IssueStatusNew
	case FilterEscalated:
		return issue.Status == domain.IssueStatusEscalated
	case FilterActive:
		return issue.Status == domain.IssueStatusNew ||
			issue.Status == domain.IssueStatusAI ||
			issue.Status == domain.IssueStatusEscalated
	default:
		return true
	}
}

func containsID(items []domain.Issue, id string) bool {
	for _, issue := range items {
		if issue.ID == id {
			return true
		}
	}
	return false
}
