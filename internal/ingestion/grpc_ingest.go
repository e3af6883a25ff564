package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"DexSettle/internal/instruction"
)

// GRPCIngestService provides admin/manual instruction injection via gRPC.
// This surface is for operations work (listing assets, promoting pools,
// backfilling custody events), not for high-throughput ingestion (use
// NATS for that). Injected instructions ride the global partition with a
// timestamp-derived sequence.
type GRPCIngestService struct {
	instructionChan chan<- instruction.Instruction
}

func NewGRPCIngestService(instructionChan chan<- instruction.Instruction) *GRPCIngestService {
	return &GRPCIngestService{instructionChan: instructionChan}
}

func adminDispatch() instruction.Dispatch {
	now := time.Now()
	return instruction.Dispatch{
		DispatchID:  uuid.New(),
		Sequence:    now.UnixMicro(), // Admin-injected: use timestamp as sequence
		TimestampMs: now.UnixMilli(),
	}
}

func (s *GRPCIngestService) send(ctx context.Context, ins instruction.Instruction) error {
	select {
	case s.instructionChan <- ins:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectDeposit manually injects a custody deposit.
func (s *GRPCIngestService) InjectDeposit(
	ctx context.Context,
	wallet, asset common.Address,
	quantity int64,
) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	return s.send(ctx, &instruction.Deposit{
		Dispatch: adminDispatch(),
		Wallet:   wallet,
		Asset:    asset,
		Quantity: quantity,
	})
}

// InjectWithdrawal manually injects a custody withdrawal.
func (s *GRPCIngestService) InjectWithdrawal(
	ctx context.Context,
	wallet, asset common.Address,
	quantity int64,
) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	return s.send(ctx, &instruction.Withdrawal{
		Dispatch: adminDispatch(),
		Wallet:   wallet,
		Asset:    asset,
		Quantity: quantity,
	})
}

// InjectAssetRegistration manually injects a pending asset listing.
func (s *GRPCIngestService) InjectAssetRegistration(
	ctx context.Context,
	asset common.Address,
	symbol string,
	decimals uint8,
) error {
	if symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}

	return s.send(ctx, &instruction.AssetRegistration{
		Dispatch: adminDispatch(),
		Asset:    asset,
		Symbol:   symbol,
		Decimals: decimals,
	})
}

// InjectAssetConfirmation manually injects an asset confirmation.
func (s *GRPCIngestService) InjectAssetConfirmation(
	ctx context.Context,
	asset common.Address,
	symbol string,
	decimals uint8,
) error {
	if symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}

	return s.send(ctx, &instruction.AssetConfirmation{
		Dispatch: adminDispatch(),
		Asset:    asset,
		Symbol:   symbol,
		Decimals: decimals,
	})
}

// InjectPoolPromotion manually injects a pool promotion.
func (s *GRPCIngestService) InjectPoolPromotion(
	ctx context.Context,
	baseAsset, quoteAsset, pairToken common.Address,
) error {
	return s.send(ctx, &instruction.PoolPromotion{
		Dispatch:   adminDispatch(),
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		PairToken:  pairToken,
	})
}

// InjectBlockHeight manually advances the core's chain height.
func (s *GRPCIngestService) InjectBlockHeight(ctx context.Context, height int64) error {
	if height < 0 {
		return fmt.Errorf("height must not be negative")
	}

	return s.send(ctx, &instruction.BlockHeight{
		Dispatch: adminDispatch(),
		Height:   height,
	})
}
