// Package eventws streams button events to websocket clients.
package eventws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-buttonshim/buttons"
	"github.com/coreman2200/funtimes-buttonshim/model"
)

const writeTimeout = 200 * time.Millisecond

// Source provides the states reported by /health.
type Source interface {
	Snapshot() buttons.States
}

// Message is the JSON form of one event.
type Message struct {
	T       int64  `json:"t"`
	Channel string `json:"channel"`
	State   string `json:"state"`
}

type Server struct {
	src       Source
	startTime time.Time
	log       zerolog.Logger
	up        websocket.Upgrader

	// writeMu serializes broadcasts; mu only guards the fields below it.
	writeMu sync.Mutex
	send    func(c *websocket.Conn, msg []byte) error

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	sent    uint64
}

func New(src Source) *Server {
	return &Server{
		src:       src,
		startTime: time.Now(),
		log:       log.With().Str("component", "eventws").Logger(),
		up:        websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   map[*websocket.Conn]bool{},
		send:      write,
	}
}

func write(c *websocket.Conn, msg []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteMessage(websocket.TextMessage, msg)
}

// Handler routes /events and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.HandleEvents)
	mux.HandleFunc("/health", s.HandleHealth)
	return withCORS(mux)
}

func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	// Clients only listen; reading detects the close.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	states := map[string]string{}
	if s.src != nil {
		snap := s.src.Snapshot()
		for _, ch := range model.Channels {
			states[ch.String()] = snap[ch].Kind.String()
		}
	}
	s.mu.RLock()
	resp := map[string]any{
		"uptime_s": time.Since(s.startTime).Seconds(),
		"events":   s.sent,
		"clients":  len(s.clients),
		"states":   states,
	}
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Run forwards events from sub until ctx is done or sub is closed, then
// disconnects every client.
func (s *Server) Run(ctx context.Context, sub *buttons.Subscription) error {
	defer s.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			s.Broadcast(ev)
		}
	}
}

// Broadcast writes ev to every client. Clients that fail the write are
// disconnected. Writes happen outside the client lock, so a slow client
// never stalls /health or new connections.
func (s *Server) Broadcast(ev model.Event) {
	b, _ := json.Marshal(Message{
		T:       time.Now().UnixNano(),
		Channel: ev.Channel.String(),
		State:   ev.State.Kind.String(),
	})

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.sent++
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := s.send(c, b); err != nil {
			s.log.Debug().Err(err).Msg("write event")
			s.drop(c)
		}
	}
}

func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) drop(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		c.Close()
		delete(s.clients, c)
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
