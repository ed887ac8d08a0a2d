package signaling

import "encoding/json"

// Message is the envelope of every frame on the call status channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CallStatusPayload carries a call status change pushed by the backend.
type CallStatusPayload struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Message types understood by the listener. Typed events imply a status when
// the payload omits one.
const (
	TypeCallStatus   = "call_status"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypeCallEnded    = "call_ended"
)

var impliedStatus = map[string]string{
	TypeCallAccepted: "accepted",
	TypeCallRejected: "rejected",
	TypeCallEnded:    "ended",
}

// decode returns the call status carried by msg. ok is false for frames that
// are not about call status.
func decode(msg Message) (CallStatusPayload, bool) {
	implied, typed := impliedStatus[msg.Type]
	if msg.Type != TypeCallStatus && !typed {
		return CallStatusPayload{}, false
	}
	var p CallStatusPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return CallStatusPayload{}, false
		}
	}
	if p.Status == "" {
		p.Status = implied
	}
	if p.CallID == "" || p.Status == "" {
		return CallStatusPayload{}, false
	}
	return p, true
}
