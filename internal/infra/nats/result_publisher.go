package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/domain"
)

// DefaultSubject is where resolutions are published when no subject is configured.
const DefaultSubject = "quizastrous.results"

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS with reconnect logging.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("quizastrous"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// ResultPublisher emits one message per resolved question.
type ResultPublisher struct {
	conn    Publisher
	subject string
}

func NewResultPublisher(conn Publisher, subject string) *ResultPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &ResultPublisher{conn: conn, subject: subject}
}

func (p *ResultPublisher) PublishResolution(ctx context.Context, res domain.Resolution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}
	if err := p.conn.Publish(p.subject, raw); err != nil {
		return fmt.Errorf("publish resolution %d: %w", res.Seq, err)
	}
	return nil
}
