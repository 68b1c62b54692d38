package httpadapter

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/pinmap-service/internal/geocoding"
	"github.com/couchcryptid/pinmap-service/internal/gesture"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// Outbound message types on the map socket.
const (
	MessagePlacement = "pin-placement-requested"
	MessageLabel     = "location-label"
	MessageError     = "error"
)

type placementMessage struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type labelMessage struct {
	Type     string  `json:"type"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Label    string  `json:"label"`
	Resolved bool    `json:"resolved"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (a *API) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      a.checkOrigin,
	}
}

// checkOrigin allows any origin when none are configured.
func (a *API) checkOrigin(r *http.Request) bool {
	allowed := a.cfg.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin != "" && (slices.Contains(allowed, "*") || slices.Contains(allowed, origin))
}

// handleMapSocket runs one map session: normalized input events in,
// placement requests and location labels out.
func (a *API) handleMapSocket(w http.ResponseWriter, r *http.Request) {
	up := a.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = conn.Close()
		return
	}
	a.sessions.Add(1)
	a.mu.Unlock()
	defer a.sessions.Done()

	newMapSession(a, conn).run()
}

type mapSession struct {
	api     *API
	conn    *websocket.Conn
	gesture *gesture.Disambiguator
	out     chan any

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newMapSession(a *API, conn *websocket.Conn) *mapSession {
	ctx, cancel := context.WithCancel(a.base)
	return &mapSession{
		api:     a,
		conn:    conn,
		gesture: gesture.NewDisambiguator(a.cfg.GestureThreshold),
		out:     make(chan any, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *mapSession) run() {
	s.api.metrics.GestureSessions.Inc()
	defer s.api.metrics.GestureSessions.Dec()
	s.api.logger.Debug("map session opened", "remote", s.conn.RemoteAddr().String())

	s.wg.Add(1)
	go s.writePump()

	s.readPump()
	s.cancel()
	s.wg.Wait()
	_ = s.conn.Close()
	s.api.logger.Debug("map session closed", "remote", s.conn.RemoteAddr().String())
}

func (s *mapSession) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.api.logger.Warn("map session read failed", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev gesture.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.send(errorMessage{Type: MessageError, Error: "malformed event"})
			continue
		}
		if p, ok := s.gesture.Handle(ev); ok {
			s.place(p)
		}
	}
}

// place requests a pin at the tapped point and follows up with its label.
func (s *mapSession) place(p gesture.Placement) {
	coord, err := p.LatLng.Coordinate()
	if err != nil {
		s.send(errorMessage{Type: MessageError, Error: err.Error()})
		return
	}
	s.api.metrics.GesturePlacements.Inc()
	s.send(placementMessage{Type: MessagePlacement, Lat: coord.Lat, Lon: coord.Lon})

	sub := s.api.cfg.Geocoder.Watch(coord.Lat, coord.Lon)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Close()

		select {
		case <-sub.Done():
		case <-s.ctx.Done():
			return
		}
		st := sub.State()
		if !st.Status.Terminal() {
			return
		}
		s.send(labelMessage{
			Type:     MessageLabel,
			Lat:      coord.Lat,
			Lon:      coord.Lon,
			Label:    geocoding.Label(st),
			Resolved: st.Status == geocoding.StatusResolved,
		})
	}()
}

func (s *mapSession) send(msg any) {
	select {
	case s.out <- msg:
	case <-s.ctx.Done():
	}
}

func (s *mapSession) writePump() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			// Unblocks readPump when the session is ended from this side.
			_ = s.conn.Close()
			return

		case msg := <-s.out:
			payload, err := json.Marshal(msg)
			if err != nil {
				s.api.logger.Error("map message encode failed", "error", err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.api.logger.Warn("map session write failed", "error", err)
				s.cancel()
				_ = s.conn.Close()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				_ = s.conn.Close()
				return
			}
		}
	}
}
