// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warpfusion/warpfusion/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 54 * time.Second // must be less than the admin handler's 60s pong wait
	wsSendBuf    = 256
)

// WSSink broadcasts each serialised alert record to every connected
// websocket client, for the admin server's live alert feed (spec §6.2's
// "concrete sink backends"). It never blocks on a slow client: a client
// whose send buffer is full is dropped rather than stalling the
// dispatcher (grounded on the teacher's broadcast Hub, generalized from
// a per-message fan-out to a per-write one since the sink only ever
// broadcasts, it never receives).
type WSSink struct {
	name string

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWSSink creates an empty broadcast sink. Clients register via Join.
func NewWSSink(name string) *WSSink {
	return &WSSink{
		name:    name,
		clients: make(map[*wsClient]struct{}),
	}
}

func (s *WSSink) Name() string { return s.name }

// ClientCount reports the number of currently joined clients.
func (s *WSSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Join registers conn as a broadcast recipient and starts its write
// pump. The returned func unregisters and closes conn; callers should
// invoke it once the connection's read loop (ping/pong keepalive,
// typically) exits.
func (s *WSSink) Join(conn *websocket.Conn) (leave func()) {
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuf)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	go s.writePump(c, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			close(c.send)
			<-done
		})
	}
}

// writePump is the sole writer goroutine for c.conn: gorilla/websocket
// connections do not support concurrent writes, so both broadcast
// payloads and keepalive pings for this client must flow through here
// rather than from the admin handler's read loop.
func (s *WSSink) writePump(c *wsClient, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer close(done)
	defer c.conn.Close()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Str("sink", s.name).Msg("websocket sink write failed, dropping client")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Write fans payload out to every connected client, dropping (not
// blocking on) any client whose buffer is already full.
func (s *WSSink) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			logging.Debug().Str("sink", s.name).Msg("websocket sink client buffer full, dropping message")
		}
	}
	return nil
}

// Stop closes every client connection.
func (s *WSSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	return nil
}
