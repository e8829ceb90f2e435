// SPDX-License-Identifier: AGPL-3.0-or-later

package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/sink"
)

const wsPongWait = 60 * time.Second

// newWSHandler upgrades each request to a websocket connection and joins
// it to feed's broadcast set. The sink owns the connection's single
// writer goroutine (broadcast payloads and keepalive pings both flow
// through it, since gorilla/websocket forbids concurrent writers); this
// handler only reads, purely to detect client disconnects and refresh
// the read deadline on each pong.
func newWSHandler(upgrader websocket.Upgrader, feed *sink.WSSink, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		leave := feed.Join(conn)
		defer leave()

		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
