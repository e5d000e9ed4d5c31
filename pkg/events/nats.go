package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName         = "INTENTLINE"
	subjectRoot        = "intents"
	natsPublishTimeout = 5 * time.Second
)

// NATSSink publishes events to a JetStream stream, one subject per event
// type (intents.registered, intents.executed, ...)
type NATSSink struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ Sink = (*NATSSink)(nil)

// ConnectNATS establishes a connection to NATS and ensures the JetStream
// stream exists.
func ConnectNATS(ctx context.Context, url string) (*NATSSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our event types.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectRoot + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	return &NATSSink{nc: nc, js: js}, nil
}

func (s *NATSSink) Emit(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsPublishTimeout)
	defer cancel()

	subject := fmt.Sprintf("%s.%s", subjectRoot, e.Type)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (s *NATSSink) Close() error {
	s.nc.Close()
	return nil
}
