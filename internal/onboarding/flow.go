// Package onboarding drives the three-step registration flow that turns
// unauthenticated input into a committed account.
package onboarding

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is a registration flow state.
type State string

// Flow states. A flow advances IdentityEntry -> EmailVerification ->
// CredentialSetup -> Committed; on error it stays where it is.
const (
	StateIdentityEntry     State = "identity_entry"
	StateEmailVerification State = "email_verification"
	StateCredentialSetup   State = "credential_setup"
	StateCommitted         State = "committed"
)

// Flow is one in-progress registration. Fields accumulate step by step and
// survive a failed submit so the user can correct and retry.
type Flow struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the flow has outlived its TTL.
func (f *Flow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// FlowManager keeps in-progress flows in memory and expires abandoned ones.
// Committed accounts live in the credential store; a flow is transient state
// with no persistence requirement.
type FlowManager struct {
	mu    sync.Mutex
	flows map[string]*Flow
	ttl   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFlowManager creates a flow manager with the given flow TTL.
func NewFlowManager(ttl time.Duration) *FlowManager {
	return &FlowManager{
		flows:  make(map[string]*Flow),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
}

// Put stores or replaces a flow, stamping its expiry. The manager keeps its
// own copy so later mutations go through Update.
func (m *FlowManager) Put(flow *Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow.ExpiresAt = time.Now().Add(m.ttl)
	stored := *flow
	m.flows[flow.ID] = &stored
}

// Get returns a copy of the flow by ID, or false when unknown or expired.
func (m *FlowManager) Get(id string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flow, ok := m.flows[id]
	if !ok {
		return nil, false
	}
	if flow.Expired(time.Now()) {
		delete(m.flows, id)
		return nil, false
	}
	snapshot := *flow
	return &snapshot, true
}

// Update applies fn to the flow under the manager's lock and returns a copy
// of the result. State transitions must happen here, never on a flow handed
// out by Get. Returns ErrFlowNotFound when the flow is unknown or expired;
// an error from fn leaves the flow untouched only if fn itself did not
// mutate it before failing.
func (m *FlowManager) Update(id string, fn func(*Flow) error) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flow, ok := m.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	if flow.Expired(time.Now()) {
		delete(m.flows, id)
		return nil, ErrFlowNotFound
	}
	if err := fn(flow); err != nil {
		return nil, err
	}
	snapshot := *flow
	return &snapshot, nil
}

// Delete removes a flow.
func (m *FlowManager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, id)
}

// Len returns the number of live flows.
func (m *FlowManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

// Start launches the background sweeper for abandoned flows.
func (m *FlowManager) Start(ctx context.Context, interval time.Duration) {
	m.wg.Add(1)
	go m.run(ctx, interval)
}

// Stop gracefully stops the sweeper.
func (m *FlowManager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *FlowManager) run(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if removed := m.sweep(time.Now()); removed > 0 {
				slog.Debug("swept expired registration flows", "count", removed)
			}
		}
	}
}

func (m *FlowManager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for id, flow := range m.flows {
		if flow.Expired(now) {
			delete(m.flows, id)
			removed++
		}
	}
	return removed
}
