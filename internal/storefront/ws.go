package storefront

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

// GET /ws/session streams session, notice and navigate events of this
// browser session. The current logged-in flag is sent first.
func (s *Server) sessionSocket(c echo.Context) error {
	b := s.open(c)
	b.listen(c.Request().Context())
	events, unsubscribe := b.Subscribe(16)
	defer unsubscribe()

	// The handshake response is written by the upgrader, so a freshly
	// issued cookie has to be handed over explicitly.
	var header http.Header
	if cookies := c.Response().Header().Values(echo.HeaderSetCookie); len(cookies) > 0 {
		header = http.Header{echo.HeaderSetCookie: cookies}
	}
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		return nil
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Reader: only control frames are expected; any error means the peer left.
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev Event) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteJSON(ev)
	}
	if err := write(sessionEvent(b.Auth.IsLoggedIn())); err != nil {
		return nil
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return nil
			}
			if err := write(ev); err != nil {
				return nil
			}
		case <-ping.C:
			b.keepalive(ctx, s.registry.now())
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
