package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/rkoval/playlink/internal/dependencies/clock"
	"github.com/rkoval/playlink/internal/model"
	"github.com/rkoval/playlink/internal/protocol"
	"github.com/rkoval/playlink/internal/session"
	"github.com/rkoval/playlink/internal/store"
)

// SendGift debits the sender, credits the recipient, and pushes a GiftEvent
// to the recipient's connection if it is online.
//
// The debit and credit are independently-locked steps with no compensating
// rollback: if the recipient lookup fails after the debit succeeded, the
// debited amount is lost. That matches the original wire contract; see
// DESIGN.md before changing it.
type SendGift struct {
	players  store.PlayerStore
	registry *session.Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSendGift creates the gift handler
func NewSendGift(players store.PlayerStore, registry *session.Registry, clk clock.Clock, logger *slog.Logger) *SendGift {
	return &SendGift{
		players:  players,
		registry: registry,
		clock:    clk,
		logger:   logger.With(slog.String("handler", protocol.TypeSendGift)),
	}
}

func (h *SendGift) Type() string { return protocol.TypeSendGift }

func (h *SendGift) Handle(ctx context.Context, sess *session.Session, payload json.RawMessage) {
	if !sess.Authenticated() {
		_ = sess.SendError(ctx, protocol.CodeUnauthorized, "")
		return
	}

	var req protocol.SendGiftRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = sess.SendError(ctx, protocol.CodeBadRequest, err.Error())
		return
	}
	if req.ResourceValue <= 0 {
		_ = sess.SendError(ctx, protocol.CodeBadRequest, "ResourceValue must be > 0")
		return
	}

	sender := sess.PlayerID()

	if _, err := h.players.UpdateResource(ctx, sender, req.ResourceType, -req.ResourceValue); err != nil {
		_ = sess.SendError(ctx, protocol.CodeInvalidResourceOrBalance, "")
		return
	}

	if _, err := h.players.GetPlayer(ctx, req.FriendPlayerID); err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			_ = sess.SendError(ctx, protocol.CodeFriendNotFound, "")
			return
		}
		_ = sess.SendError(ctx, protocol.CodeInvalidResourceOrBalance, "")
		return
	}

	friendBalance, err := h.players.UpdateResource(ctx, req.FriendPlayerID, req.ResourceType, req.ResourceValue)
	if err != nil {
		// Credit of a positive delta only fails if the recipient vanished
		// between lookup and credit; the debit stands regardless.
		h.logger.Warn("gift credit failed",
			slog.String("from", string(sender)),
			slog.String("to", string(req.FriendPlayerID)),
			slog.String("error", err.Error()))
	}

	h.notifyRecipient(ctx, sender, req)

	h.logger.Info("gift sent",
		slog.String("from", string(sender)),
		slog.String("to", string(req.FriendPlayerID)),
		slog.String("resource", string(req.ResourceType)),
		slog.Int("value", req.ResourceValue))

	env, err := protocol.NewEnvelope(protocol.TypeSendGiftResponse, protocol.SendGiftResponse{
		Status:           "OK",
		FriendNewBalance: friendBalance,
	})
	if err != nil {
		return
	}
	_ = sess.Send(ctx, env)
}

// notifyRecipient pushes a GiftEvent to the recipient's session if the
// recipient is online. The push is best-effort; the recipient may disconnect
// between the presence lookup and the send.
func (h *SendGift) notifyRecipient(ctx context.Context, sender model.PlayerID, req protocol.SendGiftRequest) {
	sessionID, err := h.players.OnlineSession(ctx, req.FriendPlayerID)
	if err != nil {
		return
	}
	target, ok := h.registry.TryGet(sessionID)
	if !ok {
		return
	}

	env, err := protocol.NewEnvelope(protocol.TypeGiftEvent, protocol.GiftEvent{
		FromPlayerID:  sender,
		ResourceType:  req.ResourceType,
		ResourceValue: req.ResourceValue,
		SentAtUTC:     h.clock.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := target.Send(ctx, env); err != nil {
		h.logger.Warn("gift event push failed",
			slog.String("to", string(req.FriendPlayerID)),
			slog.String("error", err.Error()))
	}
}
