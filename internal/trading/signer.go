// internal/trading/signer.go
package trading

import (
	"fmt"

	"github.com/solpilot/solpilot/internal/chain"
	"github.com/solpilot/solpilot/internal/wallet"
)

// WalletSigner signs order transactions with the operating wallet.
type WalletSigner struct {
	wallet *wallet.Wallet
}

func NewWalletSigner(w *wallet.Wallet) *WalletSigner {
	return &WalletSigner{wallet: w}
}

// SignOrder decodes the unsigned order transaction, signs it, and returns
// the base64-encoded signed transaction.
func (s *WalletSigner) SignOrder(txBase64 string) (string, error) {
	tx, err := chain.TransactionFromBase64(txBase64)
	if err != nil {
		return "", err
	}
	if err := s.wallet.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("failed to sign order transaction: %w", err)
	}
	return chain.TransactionToBase64(tx)
}

// Address returns the operating wallet's public key.
func (s *WalletSigner) Address() string {
	return s.wallet.Address()
}
