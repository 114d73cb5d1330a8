package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"staking-ledger/internal/domain"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// handleEvents serves event history filtered by exactly one of token
// (with optional from/to in ms), investigation or account.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		list []*domain.LedgerEvent
		err  error
	)
	switch {
	case q.Get("token") != "":
		token, perr := parseAddress("token", q.Get("token"))
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		from, perr := parseMillis(q.Get("from"), 0)
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		to, perr := parseMillis(q.Get("to"), math.MaxInt64)
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		list, err = s.events.GetByToken(r.Context(), token, from, to)
	case q.Get("investigation") != "":
		id, perr := strconv.ParseUint(q.Get("investigation"), 10, 64)
		if perr != nil {
			s.writeError(w, r, badRequest("investigation: %v", perr))
			return
		}
		list, err = s.events.GetByInvestigation(r.Context(), id)
	case q.Get("account") != "":
		account, perr := parseAddress("account", q.Get("account"))
		if perr != nil {
			s.writeError(w, r, perr)
			return
		}
		list, err = s.events.GetByAccount(r.Context(), account)
	default:
		s.writeError(w, r, badRequest("one of token, investigation or account is required"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]eventResponse, len(list))
	for i, e := range list {
		out[i] = toEventResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStream upgrades to a websocket and pushes every committed event,
// optionally filtered by ?token=.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var filter *common.Address
	if v := r.URL.Query().Get("token"); v != "" {
		token, err := parseAddress("token", v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter = &token
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(filter)
	defer s.hub.Unsubscribe(sub)

	s.logger.Info("event stream connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	// The read loop only handles control frames and notices disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn("event stream closed unexpectedly", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(toEventResponse(e)); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseMillis(v string, def int64) (int64, error) {
	if v == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, badRequest("time %q: %v", v, err)
	}
	return ms, nil
}
