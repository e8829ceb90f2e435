// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/metrics"
)

// maxFrameBytes bounds a single frame's declared payload length, guarding
// against a corrupt or hostile length prefix driving an unbounded
// allocation.
const maxFrameBytes = 256 << 20

// RouteFunc is called once per successfully decoded frame. Implementations
// take ownership of rb and must Release it once they are done with it
// (typically after Window.AppendWithWatermark has cloned it). Production
// callers pass router.Router.Route adapted to this signature.
type RouteFunc func(stream string, rb *batch.RecordBatch)

// TCPReceiver accepts length-prefixed frames on a TCP listener (spec
// §6.1): a 4-byte big-endian payload length, followed by that many bytes
// of opaque columnar-IPC payload. Each accepted connection is rate
// limited independently so one pathological sender cannot starve others
// (spec §11's x/time/rate wiring, on top of spec §5's TCP-flow-control
// back-pressure).
type TCPReceiver struct {
	addr      string
	decoder   Decoder
	routeFn   RouteFunc
	burstRate rate.Limit
	burstSize int
	log       zerolog.Logger
}

// TCPReceiverOption configures a TCPReceiver.
type TCPReceiverOption func(*TCPReceiver)

// WithFrameRateLimit bounds the rate of accepted frames per connection.
// The default is unlimited.
func WithFrameRateLimit(framesPerSecond rate.Limit, burst int) TCPReceiverOption {
	return func(r *TCPReceiver) {
		r.burstRate = framesPerSecond
		r.burstSize = burst
	}
}

// NewTCPReceiver builds a receiver bound to addr (accepts "tcp://host:port"
// or a bare "host:port").
func NewTCPReceiver(addr string, decoder Decoder, routeFn RouteFunc, log zerolog.Logger, opts ...TCPReceiverOption) *TCPReceiver {
	r := &TCPReceiver{
		addr:      strings.TrimPrefix(addr, "tcp://"),
		decoder:   decoder,
		routeFn:   routeFn,
		burstRate: rate.Inf,
		burstSize: 1,
		log:       log.With().Str("component", "ingest.tcp").Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run listens on r.addr and accepts connections until ctx is cancelled.
// Each connection is served by its own goroutine; Run returns once the
// listener is closed and every connection goroutine has exited.
func (r *TCPReceiver) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("ingest: listen on %s: %w", r.addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var active int
	connDone := make(chan struct{})
	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				acceptErr = nil
			default:
				acceptErr = err
			}
			break
		}
		active++
		go func() {
			defer func() { connDone <- struct{}{} }()
			r.serve(ctx, conn)
		}()
	}

	for active > 0 {
		<-connDone
		active--
	}
	return acceptErr
}

func (r *TCPReceiver) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	limiter := rate.NewLimiter(r.burstRate, r.burstSize)
	peer := conn.RemoteAddr().String()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		if dl, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(dl)
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug().Err(err).Str("peer", peer).Msg("connection closed reading frame length")
			}
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxFrameBytes {
			r.log.Warn().Str("peer", peer).Uint32("declared_len", n).Msg("frame exceeds max size; closing connection")
			return
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			r.log.Warn().Err(err).Str("peer", peer).Msg("connection closed reading frame payload")
			return
		}
		metrics.FramesReceivedTotal.Inc()

		stream, rb, err := r.decoder.Decode(payload)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues("unknown").Inc()
			r.log.Warn().Err(err).Str("peer", peer).Msg("frame decode failed; skipping")
			continue
		}

		r.routeFn(stream, rb)
	}
}
