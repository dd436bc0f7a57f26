package blockchain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Wallet holds the bot's signing key.
type Wallet struct {
	key solana.PrivateKey
}

// LoadWallet reads a keygen-format keypair file.
func LoadWallet(path string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return &Wallet{key: key}, nil
}

// WalletFromKey wraps an in-memory private key. Used in tests.
func WalletFromKey(key solana.PrivateKey) *Wallet {
	return &Wallet{key: key}
}

// PublicKey returns the signer address.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// Sign signs every required signature slot of the transaction.
func (w *Wallet) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
