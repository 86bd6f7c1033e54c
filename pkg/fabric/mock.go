package fabric

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted fabric for tests. Dial outcomes are keyed by
// phone number; unkeyed numbers answer successfully.
type MockClient struct {
	mu           sync.Mutex
	dialErrors   map[string]error
	dispatches   []AgentDispatchRequest
	participants []SIPParticipantRequest
	nextID       int

	// DialHook, when set, runs before each CreateSIPParticipant and can
	// block to simulate long answer waits.
	DialHook func(ctx context.Context, req SIPParticipantRequest) error
}

// NewMock creates a mock fabric where every call answers.
func NewMock() *MockClient {
	return &MockClient{dialErrors: make(map[string]error)}
}

// FailDial makes calls to the given number fail with err.
func (m *MockClient) FailDial(phone string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErrors[phone] = err
}

// CreateAgentDispatch implements Client.
func (m *MockClient) CreateAgentDispatch(_ context.Context, req AgentDispatchRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, req)
	m.nextID++
	return fmt.Sprintf("dispatch-%d", m.nextID), nil
}

// CreateSIPParticipant implements Client.
func (m *MockClient) CreateSIPParticipant(ctx context.Context, req SIPParticipantRequest) (string, error) {
	if m.DialHook != nil {
		if err := m.DialHook(ctx, req); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.dialErrors[req.PhoneNumber]; ok {
		return "", err
	}
	m.participants = append(m.participants, req)
	m.nextID++
	return fmt.Sprintf("participant-%d", m.nextID), nil
}

// Dispatches returns the agent dispatches seen so far.
func (m *MockClient) Dispatches() []AgentDispatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AgentDispatchRequest, len(m.dispatches))
	copy(out, m.dispatches)
	return out
}

// Participants returns the successful dials seen so far.
func (m *MockClient) Participants() []SIPParticipantRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SIPParticipantRequest, len(m.participants))
	copy(out, m.participants)
	return out
}
