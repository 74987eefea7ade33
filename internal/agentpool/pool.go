package agentpool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Pool is a bounded set of session agents with non-blocking acquire and
// release semantics. The arbiter leases one agent per active fight and
// returns it on every exit path.
type Pool struct {
	logger    zerolog.Logger
	available chan Agent

	mu     sync.Mutex
	leased map[Agent]bool
	size   int
}

// NewPool builds a pool over a fixed set of agents.
func NewPool(logger zerolog.Logger, agents []Agent) *Pool {
	p := &Pool{
		logger:    logger.With().Str("component", "agent_pool").Logger(),
		available: make(chan Agent, len(agents)),
		leased:    make(map[Agent]bool),
		size:      len(agents),
	}
	for _, agent := range agents {
		p.available <- agent
	}
	return p
}

// Acquire leases an agent, or returns ErrNoAgentAvailable without blocking
// when every agent is out.
func (p *Pool) Acquire() (Agent, error) {
	select {
	case agent := <-p.available:
		p.mu.Lock()
		p.leased[agent] = true
		p.mu.Unlock()
		return agent, nil
	default:
		return nil, ErrNoAgentAvailable
	}
}

// Release returns a leased agent to the pool. Releasing an agent that is
// not currently leased is a no-op, so cleanup paths can call it safely.
func (p *Pool) Release(agent Agent) {
	if agent == nil {
		return
	}

	p.mu.Lock()
	if !p.leased[agent] {
		p.mu.Unlock()
		p.logger.Warn().Msg("Ignoring release of agent that is not leased")
		return
	}
	delete(p.leased, agent)
	p.mu.Unlock()

	select {
	case p.available <- agent:
	default:
		// Cannot happen while the leased set is consistent.
		p.logger.Error().Msg("Agent pool overflow on release")
	}
}

// Available returns the number of idle agents.
func (p *Pool) Available() int {
	return len(p.available)
}

// Leased returns the number of agents currently out on lease.
func (p *Pool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Size returns the total number of agents the pool was built with.
func (p *Pool) Size() int {
	return p.size
}
