package protocol

import (
	"time"

	"github.com/rkoval/playlink/internal/model"
)

// Error codes carried in ErrorResponse.Error. None of them are fatal to the
// connection that caused them.
const (
	CodeBadRequest               = "BadRequest"
	CodeUnauthorized             = "Unauthorized"
	CodeAlreadyOnline            = "AlreadyOnline"
	CodeInvalidResourceOrBalance = "InvalidResourceOrBalance"
	CodeFriendNotFound           = "FriendNotFound"
	CodeUnknownType              = "UnknownType"
)

// Request payloads

type LoginRequest struct {
	DeviceID string `json:"DeviceId"`
}

type UpdateResourcesRequest struct {
	ResourceType  model.ResourceType `json:"ResourceType"`
	ResourceValue int                `json:"ResourceValue"`
}

type SendGiftRequest struct {
	FriendPlayerID model.PlayerID     `json:"FriendPlayerId"`
	ResourceType   model.ResourceType `json:"ResourceType"`
	ResourceValue  int                `json:"ResourceValue"`
}

// Response and event payloads

type LoginResponse struct {
	PlayerID model.PlayerID `json:"PlayerId"`
	Message  string         `json:"Message"`
}

type UpdateResourcesResponse struct {
	ResourceType model.ResourceType `json:"ResourceType"`
	NewBalance   int                `json:"NewBalance"`
}

type SendGiftResponse struct {
	Status           string `json:"Status"`
	FriendNewBalance int    `json:"FriendNewBalance"`
}

// GiftEvent is pushed to the recipient's connection without a matching
// request from that connection.
type GiftEvent struct {
	FromPlayerID  model.PlayerID     `json:"FromPlayerId"`
	ResourceType  model.ResourceType `json:"ResourceType"`
	ResourceValue int                `json:"ResourceValue"`
	SentAtUTC     time.Time          `json:"SentAtUtc"`
}

type ErrorResponse struct {
	Error   string `json:"Error"`
	Details string `json:"Details,omitempty"`
}

// NewError builds an Error envelope with the given code and optional detail.
func NewError(code, details string) Envelope {
	env, _ := NewEnvelope(TypeError, ErrorResponse{Error: code, Details: details})
	return env
}
