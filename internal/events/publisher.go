// Package events publishes high and critical risk alerts to Kafka after an
// analysis pass.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/godilite/churnradar/internal/repository/models"
)

// Alert sources.
const (
	SourceHeuristic = "heuristic"
	SourceSignature = "signature"
)

// Alert is the message body written to the alerts topic, keyed by account.
type Alert struct {
	AccountID   string    `json:"account_id"`
	Source      string    `json:"source"`
	Score       float64   `json:"score"`
	RiskLevel   string    `json:"risk_level"`
	Confidence  string    `json:"confidence,omitempty"`
	SignatureID string    `json:"signature_id,omitempty"`
	Factors     []string  `json:"factors,omitempty"`
	ScoredAt    time.Time `json:"scored_at"`
}

type Publisher interface {
	Publish(ctx context.Context, alerts []Alert) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alerts to a single topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic:  topic,
		logger: logger.Named("alert-publisher"),
	}
}

// Publish writes all alerts in one batch. Keys are account ids so that a
// consumer sees each account's alerts in order.
func (p *KafkaPublisher) Publish(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", a.AccountID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.AccountID), Value: data})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write alerts to %s: %w", p.topic, err)
	}

	p.logger.Info("alerts published", zap.String("topic", p.topic), zap.Int("count", len(msgs)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards alerts. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, []Alert) error { return nil }
func (Nop) Close() error                           { return nil }

// FromRiskScores returns alerts for every high or critical heuristic score.
func FromRiskScores(scores []models.RiskScore) []Alert {
	var out []Alert
	for _, rs := range scores {
		if !models.Elevated(rs.RiskLevel) {
			continue
		}
		out = append(out, Alert{
			AccountID: rs.AccountID,
			Source:    SourceHeuristic,
			Score:     rs.Overall,
			RiskLevel: rs.RiskLevel,
			Factors:   rs.RiskFactors,
			ScoredAt:  rs.ScoredAt,
		})
	}
	return out
}

// FromPredictions returns alerts for every high or critical signature prediction.
func FromPredictions(predictions []models.ChurnPrediction) []Alert {
	var out []Alert
	for _, p := range predictions {
		if !models.Elevated(p.RiskLevel) {
			continue
		}
		factors := make([]string, 0, len(p.MatchedSignals))
		for _, s := range p.MatchedSignals {
			factors = append(factors, s.Explanation)
		}
		out = append(out, Alert{
			AccountID:   p.AccountID,
			Source:      SourceSignature,
			Score:       p.Score,
			RiskLevel:   p.RiskLevel,
			Confidence:  p.Confidence,
			SignatureID: p.SignatureID.String(),
			Factors:     factors,
			ScoredAt:    p.ScoredAt,
		})
	}
	return out
}
