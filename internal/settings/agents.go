package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
)

// agentsKey is the settings entry holding the whole roster as one
// JSON document.
const agentsKey = "agents"

// Agent is one configured support agent persona.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Greeting    string    `json:"greeting"`
	Guardrails  string    `json:"guardrails"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Agents manages the roster on top of the settings store.
type Agents struct {
	store ports.SettingsStore
	now   func() time.Time
}

// NewAgents wires the roster service.
func NewAgents(store ports.SettingsStore) *Agents {
	return &Agents{store: store, now: time.Now}
}

// List returns all agents, sorted by name.
func (a *Agents) List(ctx context.Context) ([]Agent, error) {
	agents, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// Get returns the agent with the given id.
func (a *Agents) Get(ctx context.Context, id string) (Agent, error) {
	agents, err := a.load(ctx)
	if err != nil {
		return Agent{}, err
	}
	for _, agent := range agents {
		if agent.ID == id {
			return agent, nil
		}
	}
	return Agent{}, domain.NewValidationError("agents.get", "no agent with id "+id)
}

// Save creates the agent when its id is empty, or replaces the
// existing entry otherwise.
func (a *Agents) Save(ctx context.Context, agent Agent) (Agent, error) {
	if agent.Name == "" {
		return Agent{}, domain.NewValidationError("agents.save", "agent name is required")
	}

	agents, err := a.load(ctx)
	if err != nil {
		return Agent{}, err
	}

	// UTC drops the monotonic reading, so timestamps compare the same
	// before and after a round-trip through the store's JSON encoding.
	now := a.now().UTC()
	agent.UpdatedAt = now
	if agent.ID == "" {
		agent.ID = uuid.New().String()
		agent.CreatedAt = now
		agents = append(agents, agent)
	} else {
		found := false
		for i := range agents {
			if agents[i].ID == agent.ID {
				agent.CreatedAt = agents[i].CreatedAt
				agents[i] = agent
				found = true
				break
			}
		}
		if !found {
			return Agent{}, domain.NewValidationError("agents.save", "no agent with id "+agent.ID)
		}
	}

	if err := a.save(ctx, agents); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// Delete removes the agent with the given id. Deleting an unknown id
// is a no-op.
func (a *Agents) Delete(ctx context.Context, id string) error {
	agents, err := a.load(ctx)
	if err != nil {
		return err
	}

	kept := agents[:0]
	for _, agent := range agents {
		if agent.ID != id {
			kept = append(kept, agent)
		}
	}
	return a.save(ctx, kept)
}

func (a *Agents) load(ctx context.Context) ([]Agent, error) {
	raw, ok, err := a.store.Get(ctx, agentsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var agents []Agent
	if err := json.Unmarshal(raw, &agents); err != nil {
		return nil, fmt.Errorf("corrupt agent roster: %w", err)
	}
	return agents, nil
}

func (a *Agents) save(ctx context.Context, agents []Agent) error {
	raw, err := json.Marshal(agents)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, agentsKey, raw)
}
