// Package publisher fans successful poll snapshots out over NATS so other
// home-automation consumers can react to ride activity without talking to
// the provider themselves.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/grimsteel/smarttag-go/poller"
)

// Publisher publishes per-student route windows and the newest ride to
// subjects under the smarttag root. It implements poller.Sink.
type Publisher struct {
	nc *nats.Conn
}

// New connects to the NATS server at url.
func New(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("smarttag-poller"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Warn().Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Publish sends each student's windows and, when present, their most recent
// ride. Rides arrive newest first from the provider, so index 0 is the
// latest.
func (p *Publisher) Publish(_ context.Context, snap poller.Snapshot) error {
	for _, student := range snap.Students {
		root := "smarttag." + subjectToken(student.Student.ExternalID)

		if err := p.publishJSON(root+".windows", student.Windows); err != nil {
			return err
		}
		if len(student.Rides) > 0 {
			if err := p.publishJSON(root+".ride", student.Rides[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Publisher) publishJSON(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// subjectToken sanitizes a value for use as a NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
