package server

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// upgradeGate rejects plain HTTP requests to the socket endpoint.
func (s *Server) upgradeGate(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// closeWith sends a close frame with the given code and drops the connection.
func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}

// handleSocket authenticates the handshake, admits the connection into the
// hub, replays pending messages, and runs the pumps until disconnect.
// Credential problems close with 1008 so clients know to re-authenticate;
// infrastructure problems close with 1011 so they retry.
func (s *Server) handleSocket(conn *websocket.Conn) {
	token := conn.Query("token")
	if token == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "missing token")
		return
	}
	userID, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, models.AsAppError(err).Code)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chatIDs, err := s.chats.ChatIDsForUser(ctx, userID)
	if err != nil {
		middleware.Logger.Error("Failed to load chat memberships",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	client, err := s.hub.Register(userID, conn, chatIDs)
	if err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, models.AsAppError(err).Code)
		return
	}

	// Optionally bind the socket to a device session, so the sessions list
	// shows which device holds a live connection.
	if sessionToken := conn.Query("session"); sessionToken != "" {
		if sess, serr := s.sessions.FindByToken(client.Context(), sessionToken); serr == nil && sess.UserID == userID {
			client.SessionID = sess.ID
			if aerr := s.sessions.AttachSocket(client.Context(), sess, client.SocketID); aerr != nil {
				middleware.Logger.Warn("Failed to attach socket to session",
					slog.Uint64("session_id", uint64(sess.ID)), slog.String("error", aerr.Error()))
			}
		}
	}

	s.router.Bind(client)

	go client.WritePump()
	go client.HandlePump()

	client.SendEvent(realtime.EventConnectionSuccess, realtime.ConnectionSuccessPayload{
		UserID:    userID,
		Timestamp: time.Now(),
	})

	// Replay messages that arrived while every device was offline.
	if err := s.worker.FlushPending(client.Context(), client); err != nil {
		middleware.Logger.Warn("Pending flush failed",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}

	client.ReadPump()
}
