package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store"
)

// UpdateResources applies a signed delta to one of the calling player's own
// balances.
type UpdateResources struct {
	players store.PlayerStore
	logger  *slog.Logger
}

// NewUpdateResources creates the resource-update handler
func NewUpdateResources(players store.PlayerStore, logger *slog.Logger) *UpdateResources {
	return &UpdateResources{
		players: players,
		logger:  logger.With(slog.String("handler", protocol.TypeUpdateResources)),
	}
}

func (h *UpdateResources) Type() string { return protocol.TypeUpdateResources }

func (h *UpdateResources) Handle(ctx context.Context, sess *session.Session, payload json.RawMessage) {
	if !sess.Authenticated() {
		_ = sess.SendError(ctx, protocol.CodeUnauthorized, "")
		return
	}

	var req protocol.UpdateResourcesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = sess.SendError(ctx, protocol.CodeBadRequest, err.Error())
		return
	}

	newBalance, err := h.players.UpdateResource(ctx, sess.PlayerID(), req.ResourceType, req.ResourceValue)
	if err != nil {
		_ = sess.SendError(ctx, protocol.CodeInvalidResourceOrBalance, "")
		return
	}

	h.logger.Info("resources updated",
		slog.String("player_id", string(sess.PlayerID())),
		slog.String("resource", string(req.ResourceType)),
		slog.Int("delta", req.ResourceValue),
		slog.Int("new_balance", newBalance))

	env, err := protocol.NewEnvelope(protocol.TypeUpdateResourcesResponse, protocol.UpdateResourcesResponse{
		ResourceType: req.ResourceType,
		NewBalance:   newBalance,
	})
	if err != nil {
		return
	}
	_ = sess.Send(ctx, env)
}
