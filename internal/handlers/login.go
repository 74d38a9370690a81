package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store"
)

// Login resolves a device identifier to a player, marks it online and binds
// the session to the player identity.
type Login struct {
	players store.PlayerStore
	logger  *slog.Logger
}

// NewLogin creates the login handler
func NewLogin(players store.PlayerStore, logger *slog.Logger) *Login {
	return &Login{
		players: players,
		logger:  logger.With(slog.String("handler", protocol.TypeLogin)),
	}
}

func (h *Login) Type() string { return protocol.TypeLogin }

func (h *Login) Handle(ctx context.Context, sess *session.Session, payload json.RawMessage) {
	var req protocol.LoginRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = sess.SendError(ctx, protocol.CodeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		h.reply(ctx, sess, "", "BadRequest: DeviceId missing")
		return
	}

	player, err := h.players.Login(ctx, sess.ID, req.DeviceID)
	if err != nil {
		msg := "Failed"
		if errors.Is(err, model.ErrAlreadyOnline) {
			msg = "Player already connected"
		}
		h.reply(ctx, sess, "", msg)
		return
	}

	sess.Associate(player.ID)
	h.logger.Info("player logged in",
		slog.String("player_id", string(player.ID)),
		slog.String("device_id", player.DeviceID),
		slog.String("session_id", string(sess.ID)))
	h.reply(ctx, sess, player.ID, "OK")
}

func (h *Login) reply(ctx context.Context, sess *session.Session, playerID model.PlayerID, msg string) {
	env, err := protocol.NewEnvelope(protocol.TypeLoginResponse, protocol.LoginResponse{
		PlayerID: playerID,
		Message:  msg,
	})
	if err != nil {
		return
	}
	_ = sess.Send(ctx, env)
}
