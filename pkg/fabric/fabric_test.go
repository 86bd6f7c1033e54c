package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
)

func TestSIPErrorRetryable(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{486, true},  // busy
		{487, true},  // cancelled
		{408, true},  // no answer
		{503, true},  // service unavailable
		{404, false}, // not found
		{410, false}, // gone
		{603, false}, // declined
		{599, true},  // unknown defaults to retryable
	}
	for _, tt := range tests {
		err := &SIPError{Code: tt.code, Status: "x"}
		assert.Equal(t, tt.retryable, err.Retryable(), "code %d", tt.code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&SIPError{Code: 603}))
	assert.True(t, IsRetryable(&SIPError{Code: 486}))
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(errors.New("socket closed")))
}

func TestHTTPClientDispatchAndDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/agent-dispatches":
			var req AgentDispatchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "followup-call-1", req.RoomName)
			_ = json.NewEncoder(w).Encode(map[string]string{"dispatch_id": "d-1"})
		case "/v1/sip-participants":
			var req SIPParticipantRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.WaitUntilAnswered)
			_ = json.NewEncoder(w).Encode(map[string]string{"participant_id": "p-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := NewHTTPClient(config.FabricConfig{URL: srv.URL, TrunkID: "ST_test"})
	require.NoError(t, err)

	dispatchID, err := client.CreateAgentDispatch(context.Background(), AgentDispatchRequest{
		AgentName: "postop-followup",
		RoomName:  "followup-call-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "d-1", dispatchID)

	participantID, err := client.CreateSIPParticipant(context.Background(), SIPParticipantRequest{
		RoomName:            "followup-call-1",
		TrunkID:             "ST_test",
		PhoneNumber:         "+15551234567",
		ParticipantIdentity: "patient",
		WaitUntilAnswered:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", participantID)
}

func TestHTTPClientSIPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":           "dial failed",
			"sip_status_code": 486,
			"sip_status":      "Busy Here",
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(config.FabricConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = client.CreateSIPParticipant(context.Background(), SIPParticipantRequest{PhoneNumber: "+15550000000"})
	var sipErr *SIPError
	require.ErrorAs(t, err, &sipErr)
	assert.Equal(t, 486, sipErr.Code)
	assert.True(t, sipErr.Retryable())
}

func TestHTTPClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(config.FabricConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = client.CreateAgentDispatch(context.Background(), AgentDispatchRequest{RoomName: "r"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
