// internal/chain/client.go
// Package chain wraps the Solana RPC calls the engine needs: building the
// native funding transfer and submitting signed transactions.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const LamportsPerSOL = 1_000_000_000

// blockhash fetches are transient-failure prone, so they get a bounded retry.
const blockhashMaxTries = 3

type Client struct {
	rpc    *rpc.Client
	logger *zap.Logger
}

func NewClient(endpoint string, logger *zap.Logger) *Client {
	return &Client{
		rpc:    rpc.New(endpoint),
		logger: logger.Named("chain"),
	}
}

// BuildTransfer creates an unsigned native transfer of amountSol from one
// address to another, anchored to a fresh blockhash.
func (c *Client) BuildTransfer(ctx context.Context, from, to solana.PublicKey, amountSol float64) (*solana.Transaction, error) {
	if amountSol <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %f", amountSol)
	}

	blockhash, err := c.recentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	lamports := uint64(amountSol * LamportsPerSOL)
	ix := system.NewTransferInstruction(lamports, from, to).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer transaction: %w", err)
	}

	c.logger.Debug("Built transfer transaction",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Float64("amount_sol", amountSol))

	return tx, nil
}

// Submit sends a signed transaction and waits for the RPC node to accept it.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("transaction failed: %w", err)
	}

	c.logger.Info("Transaction submitted", zap.String("signature", sig.String()))
	return sig, nil
}

func (c *Client) recentBlockhash(ctx context.Context) (solana.Hash, error) {
	op := func() (solana.Hash, error) {
		out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return solana.Hash{}, err
		}
		if out == nil || out.Value == nil {
			return solana.Hash{}, backoff.Permanent(fmt.Errorf("empty blockhash response"))
		}
		return out.Value.Blockhash, nil
	}

	return backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(blockhashMaxTries),
		backoff.WithMaxElapsedTime(15*time.Second),
	)
}
