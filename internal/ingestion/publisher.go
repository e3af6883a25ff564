package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes settlement outcomes to NATS for downstream
// consumers. Outcomes are published after persistence is confirmed.
// Subjects follow the pattern: dex.settlements.{instruction_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableSettlement
}

// PublishableSettlement is a settled (applied or rejected) instruction
// ready for outbound publishing.
type PublishableSettlement struct {
	Sequence        int64     `json:"sequence"`
	InstructionType string    `json:"instruction_type"`
	IdempotencyKey  string    `json:"idempotency_key"`
	Market          *string   `json:"market,omitempty"`
	Status          string    `json:"status"`
	RejectReason    string    `json:"reject_reason,omitempty"`
	RejectDetail    string    `json:"reject_detail,omitempty"`
	StateHash       []byte    `json:"state_hash"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableSettlement) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case st, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, st); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", st.Sequence, err)
				// Non-fatal: downstream consumers can query the settlement log directly
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, st PublishableSettlement) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}

	// Build subject: dex.settlements.{instruction_type}.{market}
	subject := fmt.Sprintf("dex.settlements.%s", st.InstructionType)
	if st.Market != nil {
		subject = fmt.Sprintf("%s.%s", subject, *st.Market)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound settlements stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "DEX_SETTLEMENTS",
		Subjects:  []string{"dex.settlements.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream DEX_SETTLEMENTS")
	return nil
}
