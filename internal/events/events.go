// Package events publishes domain events to a message broker so that
// external consumers (notifiers, cache invalidators, analytics) can
// react to submissions reaching a terminal state.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codearena-oj/apiserver/config"
)

// Channel names used on the broker.
const SubmissionJudgedChannel = "submissions.judged"

// SubmissionJudged is emitted once per submission when it reaches a
// terminal state.
type SubmissionJudged struct {
	SubmissionID    int64     `json:"submission_id"`
	ProblemID       int       `json:"problem_id"`
	UserID          int       `json:"user_id"`
	Status          string    `json:"status"`
	PassedTestCases int       `json:"passed_test_cases"`
	TotalTestCases  int       `json:"total_test_cases"`
	JudgedAt        time.Time `json:"judged_at"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
// The server only publishes; Subscribe serves consumer processes.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend constructs the broker backend selected by config. It fails
// for "none": callers that can run broker-less should check the config
// themselves before asking for a backend.
func NewBackend(ctx context.Context, cfg config.EventsConfig) (Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return backend, nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return backend, nil
	case "", "none":
		return nil, fmt.Errorf("no events backend configured")
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// Publisher emits domain events.
type Publisher interface {
	SubmissionJudged(ctx context.Context, event SubmissionJudged) error
	Close() error
}

// BrokerPublisher publishes events through a Backend.
type BrokerPublisher struct {
	backend Backend
}

// NewPublisher constructs a publisher for the provided backend.
func NewPublisher(backend Backend) *BrokerPublisher {
	return &BrokerPublisher{backend: backend}
}

// SubmissionJudged publishes a judged event on the submissions channel.
func (p *BrokerPublisher) SubmissionJudged(ctx context.Context, event SubmissionJudged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.backend.Publish(ctx, SubmissionJudgedChannel, data, map[string]string{
		"status": event.Status,
	})
	return err
}

// Close closes the underlying backend.
func (p *BrokerPublisher) Close() error {
	return p.backend.Close()
}

// NopPublisher drops all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) SubmissionJudged(ctx context.Context, event SubmissionJudged) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
