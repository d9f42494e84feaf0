package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"storyreel/internal/editor"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsMaxMessage = 1 << 20
)

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts any origin when none are configured. Otherwise only
// listed origins, same-origin requests and requests without an Origin pass.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	host := strings.TrimSpace(r.Host)
	return strings.HasSuffix(origin, "://"+host)
}

// Connect upgrades to the control channel of one timeline session. The host
// receives the current frame and playback state, then every session event.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("id", s.ID()).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.With().Str("timeline", s.ID()).Logger()
	log.Debug().Msg("control channel opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	replies := make(chan editor.Message, 16)
	frame := s.Frame()
	snap := s.Playback()
	replies <- editor.Message{Type: editor.MsgFrame, Frame: &frame}
	replies <- editor.Message{Type: editor.MsgState, State: snap.State, Key: snap.ItemKey}
	replies <- editor.Message{Type: editor.MsgElapsed, Seconds: &snap.Elapsed}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- pumpToHost(ctx, conn, events, replies)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- pumpFromHost(ctx, conn, s, replies)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	conn.Close()
	wg.Wait()

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("control channel closed")
		return
	}
	log.Debug().Msg("control channel closed")
}

// pumpToHost is the only writer on conn.
func pumpToHost(ctx context.Context, conn *websocket.Conn, events <-chan editor.Message, replies <-chan editor.Message) error {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(m editor.Message) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(m)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return ctx.Err()
		case m := <-replies:
			if err := write(m); err != nil {
				return err
			}
		case m, ok := <-events:
			if !ok {
				return nil
			}
			if err := write(m); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		}
	}
}

func pumpFromHost(ctx context.Context, conn *websocket.Conn, s *editor.Session, replies chan<- editor.Message) error {
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var in editor.Inbound
		if jerr := json.Unmarshal(data, &in); jerr != nil {
			if err := reply(ctx, replies, editor.Message{Type: editor.MsgError, Error: "invalid message"}); err != nil {
				return err
			}
			continue
		}
		if derr := s.Dispatch(ctx, in); derr != nil {
			if err := reply(ctx, replies, editor.Message{Type: editor.MsgError, Key: in.Type, Error: derr.Error()}); err != nil {
				return err
			}
		}
	}
}

func reply(ctx context.Context, replies chan<- editor.Message, m editor.Message) error {
	select {
	case replies <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
