// internal/wallet/wallet_test.go
package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromBase58(t *testing.T) {
	generated := solana.NewWallet()

	w, err := New(generated.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey(), w.PublicKey)
	assert.Equal(t, generated.PublicKey().String(), w.Address())
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not-base58-!!!")
	assert.Error(t, err)

	// Valid base58, wrong length.
	_, err = New("3yZe7d")
	assert.Error(t, err)
}

func TestSignTransaction(t *testing.T) {
	generated := solana.NewWallet()
	w, err := New(generated.PrivateKey.String())
	require.NoError(t, err)

	inst := system.NewTransferInstruction(1_000_000, w.PublicKey, solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		solana.Hash{},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}
