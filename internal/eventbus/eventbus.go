// Package eventbus publishes a run-summary event for every completed
// document run, so downstream consumers (dashboards, alerting) can react
// without polling the Postgres audit store.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"policypipeline/internal/manifest"
)

// Publisher wraps a kafka.Writer scoped to the run-summary topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a Publisher writing to topic across brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }

// RunSummary is the event payload published for one completed document run.
type RunSummary struct {
	CorrelationID     string    `json:"correlation_id"`
	PolicyUnitID      string    `json:"policy_unit_id"`
	Success           bool      `json:"success"`
	OverallScore      float64   `json:"overall_score"`
	ExecutionPlanHash string    `json:"execution_plan_hash"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// PublishRunSummary serializes and writes a RunSummary derived from m,
// keyed by correlation id so consumers can deduplicate retried publishes.
func (p *Publisher) PublishRunSummary(ctx context.Context, policyUnitID string, m manifest.Manifest) error {
	summary := RunSummary{
		CorrelationID:     m.CorrelationID,
		PolicyUnitID:      policyUnitID,
		Success:           m.Success,
		OverallScore:      m.Overall.WeightedMean,
		ExecutionPlanHash: m.ExecutionPlanHash,
		GeneratedAt:       m.GeneratedAt,
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.CorrelationID),
		Value: body,
	})
}
