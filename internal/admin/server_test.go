// SPDX-License-Identifier: AGPL-3.0-or-later

package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/warpfusion/warpfusion/internal/logging"
	"github.com/warpfusion/warpfusion/internal/sink"
)

func freeListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func startServer(t *testing.T, feed *sink.WSSink) (addr string, stop func()) {
	t.Helper()
	addr = freeListenAddr(t)
	srv := New(Config{Listen: addr, ShutdownTimeout: time.Second}, feed, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	return addr, func() {
		cancel()
		<-done
	}
}

func TestServerHealthz(t *testing.T) {
	addr, stop := startServer(t, nil)
	defer stop()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestServerMetrics(t *testing.T) {
	addr, stop := startServer(t, nil)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "go_goroutines")
}

func TestServerWebsocketBroadcastsAlerts(t *testing.T) {
	feed := sink.NewWSSink("alerts")
	addr, stop := startServer(t, feed)
	defer stop()

	wsURL := "ws://" + addr + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return feed.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, feed.Write(context.Background(), []byte(`{"rule":"brute-force"}`)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(msg), "brute-force"))
}

func TestServerWebsocketJoinLeaveOnDisconnect(t *testing.T) {
	feed := sink.NewWSSink("alerts")
	addr, stop := startServer(t, feed)
	defer stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return feed.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return feed.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestServerServeReturnsOnContextCancel(t *testing.T) {
	addr := freeListenAddr(t)
	srv := New(Config{Listen: addr, ShutdownTimeout: time.Second}, nil, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = srv.Serve(ctx)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	require.ErrorIs(t, serveErr, context.Canceled)
}
