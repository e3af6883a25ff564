package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds
// instructions into the deterministic core via instructionChan.
// NATS JetStream is the primary high-throughput ingestion surface; each
// instruction type has its own subject so consumers scale independently.
type NATSSubscriber struct {
	js              jetstream.JetStream
	instructionChan chan<- RawInstruction
	consumers       []jetstream.ConsumeContext
}

// RawInstruction is the received-but-untyped instruction from NATS, ready
// for the shell to validate and convert before sending to the core.
type RawInstruction struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to instruction types.
type SubjectConfig struct {
	Subject         string
	InstructionType string
	ConsumerName    string
	StreamName      string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "dex.trades.book.>", InstructionType: "OrderBookTrade", ConsumerName: "settle-trades-book", StreamName: "DEX_TRADES"},
		{Subject: "dex.trades.pool.>", InstructionType: "PoolTrade", ConsumerName: "settle-trades-pool", StreamName: "DEX_TRADES"},
		{Subject: "dex.trades.hybrid.>", InstructionType: "HybridTrade", ConsumerName: "settle-trades-hybrid", StreamName: "DEX_TRADES"},
		{Subject: "dex.liquidity.add.>", InstructionType: "AddLiquidity", ConsumerName: "settle-liq-add", StreamName: "DEX_LIQUIDITY"},
		{Subject: "dex.liquidity.remove.>", InstructionType: "RemoveLiquidity", ConsumerName: "settle-liq-remove", StreamName: "DEX_LIQUIDITY"},
		{Subject: "dex.liquidity.initadd.>", InstructionType: "InitiateAddLiquidity", ConsumerName: "settle-liq-initadd", StreamName: "DEX_LIQUIDITY"},
		{Subject: "dex.liquidity.initremove.>", InstructionType: "InitiateRemoveLiquidity", ConsumerName: "settle-liq-initremove", StreamName: "DEX_LIQUIDITY"},
		{Subject: "dex.funds.deposit.>", InstructionType: "Deposit", ConsumerName: "settle-deposit", StreamName: "DEX_FUNDS"},
		{Subject: "dex.funds.withdrawal.>", InstructionType: "Withdrawal", ConsumerName: "settle-withdrawal", StreamName: "DEX_FUNDS"},
		{Subject: "dex.wallet.nonce.>", InstructionType: "NonceInvalidation", ConsumerName: "settle-nonce", StreamName: "DEX_WALLET"},
		{Subject: "dex.wallet.exit.init.>", InstructionType: "WalletExit", ConsumerName: "settle-exit-init", StreamName: "DEX_WALLET"},
		{Subject: "dex.wallet.exit.final.>", InstructionType: "WalletExitFinalize", ConsumerName: "settle-exit-final", StreamName: "DEX_WALLET"},
		{Subject: "dex.admin.asset.register.>", InstructionType: "AssetRegistration", ConsumerName: "settle-asset-register", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.asset.confirm.>", InstructionType: "AssetConfirmation", ConsumerName: "settle-asset-confirm", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.pool.promote.>", InstructionType: "PoolPromotion", ConsumerName: "settle-pool-promote", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.upgrade.initiate.>", InstructionType: "UpgradeInitiate", ConsumerName: "settle-upgrade-init", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.upgrade.cancel.>", InstructionType: "UpgradeCancel", ConsumerName: "settle-upgrade-cancel", StreamName: "DEX_ADMIN"},
		{Subject: "dex.admin.upgrade.finalize.>", InstructionType: "UpgradeFinalize", ConsumerName: "settle-upgrade-final", StreamName: "DEX_ADMIN"},
		{Subject: "dex.chain.blocks.>", InstructionType: "BlockHeight", ConsumerName: "settle-blocks", StreamName: "DEX_CHAIN"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, instructionChan chan<- RawInstruction) *NATSSubscriber {
	return &NATSSubscriber{
		js:              js,
		instructionChan: instructionChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawInstruction{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.instructionChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "DEX_TRADES",
			Subjects:  []string{"dex.trades.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_LIQUIDITY",
			Subjects:  []string{"dex.liquidity.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_FUNDS",
			Subjects:  []string{"dex.funds.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_WALLET",
			Subjects:  []string{"dex.wallet.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_ADMIN",
			Subjects:  []string{"dex.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "DEX_CHAIN",
			Subjects:  []string{"dex.chain.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
