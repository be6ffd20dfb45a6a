package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig(url, prefix string) NATSConfig {
	if prefix == "" {
		prefix = "contest.events"
	}
	return NATSConfig{
		URL:           url,
		SubjectPrefix: prefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher forwards contest events to NATS subjects named
// <prefix>.<event type>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("contest-miniapp-backend"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

func Subject(prefix string, t contest.EventType) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}

func (p *NATSPublisher) Publish(ev contest.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(Subject(p.prefix, ev.Type))
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Data = data

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Run forwards events until ctx is done or the channel is closed, then
// flushes pending messages.
func (p *NATSPublisher) Run(ctx context.Context, events <-chan contest.Event) {
	defer func() {
		if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
			log.Warn().Err(err).Msg("NATS flush on shutdown failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to publish event")
			}
		}
	}
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}
