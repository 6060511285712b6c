package server

import (
	"errors"
	"sync"
	"time"

	"trading-agent/internal/types"
)

// decidedRetention is how long past its TTL a decided plan stays readable.
const decidedRetention = 24 * time.Hour

var (
	errPlanNotFound = errors.New("plan not found")
	errPlanExpired  = errors.New("plan expired")
)

// planStore keeps alert plans until they expire. Callers get copies; the
// stored plan only changes under mu.
type planStore struct {
	mu    sync.Mutex
	plans map[string]*types.AlertPlan
	ttl   time.Duration
	now   func() time.Time
}

func newPlanStore(ttl time.Duration) *planStore {
	return &planStore{plans: make(map[string]*types.AlertPlan), ttl: ttl, now: time.Now}
}

func (s *planStore) put(p *types.AlertPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	cp := *p
	s.plans[p.ID] = &cp
}

// get returns a copy of the plan.
func (s *planStore) get(id string) (types.AlertPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(id)
	if err != nil {
		return types.AlertPlan{}, err
	}
	return *p, nil
}

// claim marks a pending plan EXECUTING and returns a pending copy for the
// engine. A second claim fails until settle.
func (s *planStore) claim(id string) (*types.AlertPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PlanPending {
		return nil, types.ErrPlanNotPending
	}
	cp := *p
	p.Status = types.PlanExecuting
	return &cp, nil
}

// settle stores the outcome of a claimed plan. A plan the engine left
// pending can be claimed again.
func (s *planStore) settle(p *types.AlertPlan) types.AlertPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.plans[p.ID] = &cp
	return cp
}

func (s *planStore) reject(id string) (types.AlertPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(id)
	if err != nil {
		return types.AlertPlan{}, err
	}
	if p.Status != types.PlanPending {
		return *p, types.ErrPlanNotPending
	}
	p.Status = types.PlanRejected
	return *p, nil
}

// lookup finds id, dropping it when stale. A pending plan past its TTL is
// expired; a decided one is kept decidedRetention longer. Caller holds mu.
func (s *planStore) lookup(id string) (*types.AlertPlan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, errPlanNotFound
	}
	if s.stale(p) {
		delete(s.plans, id)
		if p.Status == types.PlanPending {
			return nil, errPlanExpired
		}
		return nil, errPlanNotFound
	}
	return p, nil
}

func (s *planStore) stale(p *types.AlertPlan) bool {
	if s.ttl <= 0 {
		return false
	}
	age := s.now().Sub(p.CreatedAt)
	switch p.Status {
	case types.PlanPending:
		return age > s.ttl
	case types.PlanExecuting:
		return false
	}
	return age > s.ttl+decidedRetention
}

// sweep drops stale plans. Caller holds mu.
func (s *planStore) sweep() {
	for id, p := range s.plans {
		if s.stale(p) {
			delete(s.plans, id)
		}
	}
}
