package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/service"
)

const writeTimeout = 5 * time.Second

type clientMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type Handler struct {
	Registry       *Registry
	Auth           authmw.Authenticator
	OriginPatterns []string
}

// Serve upgrades an authenticated request to a websocket. The token comes
// from the "token" query parameter or the Authorization header.
func (h *Handler) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "realtime.ws")

	token := c.QueryParam("token")
	if token == "" {
		token = authmw.BearerToken(c.Request())
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	user, err := h.Auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrBlocked) {
			l.Warn("ws_rejected", "status", 403, "reason", "account is blocked")
			return echo.NewHTTPError(http.StatusForbidden, "account is blocked")
		}
		l.Warn("ws_rejected", "status", 401, "reason", "invalid access token", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
	}
	if !policy.Allows(authmw.SubjectOf(user), policy.RealtimeSubscribe) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		l.Warn("ws_accept_failed", "error", err)
		return nil
	}

	client := h.Registry.Connect(user.ID)
	defer h.Registry.Disconnect(client)
	l = l.With("user_id", user.ID)
	l.Info("ws_connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				readErr <- err
				return
			}
			h.handleClientMessage(client, msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return nil
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			l.Info("ws_disconnected")
			return nil
		case msg, ok := <-client.Messages():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return nil
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancelWrite()
			if err != nil {
				l.Warn("ws_write_failed", "event", msg.Event, "error", err)
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return nil
			}
		}
	}
}

func (h *Handler) handleClientMessage(client *Conn, msg clientMessage) {
	if msg.Type != "join" {
		return
	}
	id, err := uuid.Parse(msg.UserID)
	if err == nil {
		err = h.Registry.Join(client, id)
	}
	if err != nil {
		h.Registry.Send(client, Message{Event: EventError, Data: ErrJoinDenied.Error()})
	}
}
