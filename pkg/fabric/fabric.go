// Package fabric abstracts the realtime voice/SIP platform that creates
// rooms, dispatches agents, and bridges outbound phone calls.
package fabric

import (
	"context"
	"errors"
	"fmt"
)

// AgentDispatchRequest asks the fabric to bind an agent to a room.
type AgentDispatchRequest struct {
	AgentName string `json:"agent_name"`
	RoomName  string `json:"room_name"`
	Metadata  string `json:"metadata"` // JSON blob handed to the agent
}

// SIPParticipantRequest asks the fabric to dial a phone number into a room.
type SIPParticipantRequest struct {
	RoomName            string `json:"room_name"`
	TrunkID             string `json:"trunk_id"`
	PhoneNumber         string `json:"phone_number"` // E.164
	ParticipantIdentity string `json:"participant_identity"`
	WaitUntilAnswered   bool   `json:"wait_until_answered"`
}

// Client is the Call Fabric adapter boundary. The real implementation
// binds to the platform's control plane; tests use the mock.
type Client interface {
	// CreateAgentDispatch starts an agent session bound to a room and
	// returns the dispatch id.
	CreateAgentDispatch(ctx context.Context, req AgentDispatchRequest) (string, error)

	// CreateSIPParticipant attaches an outbound SIP participant to a room
	// and, with WaitUntilAnswered set, blocks until the callee answers.
	// Returns the participant id.
	CreateSIPParticipant(ctx context.Context, req SIPParticipantRequest) (string, error)
}

// ErrUnavailable indicates the fabric control plane could not be reached.
// It classifies as retryable, like a SIP 503.
var ErrUnavailable = errors.New("call fabric unavailable")

// SIPError is a SIP-level failure reported by the fabric.
type SIPError struct {
	Code   int    // SIP status code (486, 408, ...)
	Status string // status text from the fabric
}

func (e *SIPError) Error() string {
	return fmt.Sprintf("sip %d: %s", e.Code, e.Status)
}

// Retryable classifies the SIP status code. Busy, cancelled, no-answer,
// and service-unavailable are worth retrying; not-found, gone, and
// declined are permanent. Unknown codes default to retryable.
func (e *SIPError) Retryable() bool {
	switch e.Code {
	case 486, 487, 408, 503:
		return true
	case 404, 410, 603:
		return false
	default:
		return true
	}
}

// IsRetryable classifies any fabric-boundary error: SIP errors per their
// code, unreachable fabric as retryable, anything else as retryable.
func IsRetryable(err error) bool {
	var sipErr *SIPError
	if errors.As(err, &sipErr) {
		return sipErr.Retryable()
	}
	return true
}
