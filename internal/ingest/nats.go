// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/metrics"
)

// NATSReceiverConfig configures the optional NATS/JetStream transport
// (spec §11: "an alternate nats receiver mode ... reusing the teacher's
// Watermill router-wrapper shape for message-handler registration").
type NATSReceiverConfig struct {
	URL              string
	Subject          string
	QueueGroup       string
	DurableName      string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// DefaultNATSReceiverConfig returns production defaults for subject.
func DefaultNATSReceiverConfig(url, subject string) NATSReceiverConfig {
	return NATSReceiverConfig{
		URL:              url,
		Subject:          subject,
		DurableName:      "warpfusion-ingest",
		QueueGroup:       "warpfusion-ingest",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// NATSReceiver decodes each message's payload the same way the TCP
// receiver decodes a frame payload — the length-prefix framing is simply
// unnecessary on a message transport that already delivers discrete
// payloads (spec §6.1: "over a byte-stream transport"; NATS isn't one).
type NATSReceiver struct {
	cfg        NATSReceiverConfig
	decoder    Decoder
	routeFn    RouteFunc
	subscriber message.Subscriber
	log        zerolog.Logger
}

// NewNATSReceiver dials cfg.URL and binds a durable JetStream subscriber.
func NewNATSReceiver(cfg NATSReceiverConfig, decoder Decoder, routeFn RouteFunc, log zerolog.Logger) (*NATSReceiver, error) {
	wmLogger := watermillLogAdapter{log: log.With().Str("component", "ingest.nats").Logger()}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.MaxAckPending(cfg.MaxAckPending),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("ingest: create nats subscriber: %w", err)
	}

	return &NATSReceiver{
		cfg:        cfg,
		decoder:    decoder,
		routeFn:    routeFn,
		subscriber: sub,
		log:        log.With().Str("component", "ingest.nats").Logger(),
	}, nil
}

// Run subscribes to cfg.Subject and decodes/routes each message until ctx
// is cancelled or the subscription closes.
func (r *NATSReceiver) Run(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.cfg.Subject)
	if err != nil {
		return fmt.Errorf("ingest: subscribe to %s: %w", r.cfg.Subject, err)
	}
	defer r.subscriber.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg)
		}
	}
}

func (r *NATSReceiver) handle(msg *message.Message) {
	metrics.FramesReceivedTotal.Inc()

	stream, rb, err := r.decoder.Decode(msg.Payload)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("unknown").Inc()
		r.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("message decode failed; skipping")
		msg.Ack() // a malformed payload will never decode on redelivery either
		return
	}

	r.routeFn(stream, rb)
	msg.Ack()
}

// watermillLogAdapter routes Watermill's internal logging through zerolog,
// the way the rest of this module logs (spec §10's structured-logging
// ambient stack).
type watermillLogAdapter struct {
	log zerolog.Logger
	fields watermill.LogFields
}

func (a watermillLogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillLogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillLogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillLogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a watermillLogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(a.fields)+len(fields))
	for k, v := range a.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return watermillLogAdapter{log: a.log, fields: merged}
}
