package protocol

import "encoding/json"

// ProtocolVersion is the envelope version the server currently speaks.
// It is carried on every outbound envelope and is advisory only.
const ProtocolVersion = 1

// Message type tags carried in Envelope.Type. Matching against registered
// handlers is case-insensitive.
const (
	TypeLogin           = "Login"
	TypeUpdateResources = "UpdateResources"
	TypeSendGift        = "SendGift"

	TypeLoginResponse           = "LoginResponse"
	TypeUpdateResourcesResponse = "UpdateResourcesResponse"
	TypeSendGiftResponse        = "SendGiftResponse"
	TypeGiftEvent               = "GiftEvent"
	TypeError                   = "Error"
)

// Envelope is the outer wire message in both directions. Field names are
// PascalCase on the wire; the mobile clients predate this server and the
// format is fixed.
type Envelope struct {
	Type    string          `json:"Type"`
	Payload json.RawMessage `json:"Payload"`
	Version int             `json:"Version"`
}

// NewEnvelope builds an outbound envelope, marshalling the payload.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: data, Version: ProtocolVersion}, nil
}
