package main

import (
	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
)

// buildSignedTx compiles and signs a one-off transaction.
func buildSignedTx(wallet *blockchain.Wallet, ref blockchain.BlockRef, instructions ...solana.Instruction) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, ref.Blockhash, solana.TransactionPayer(wallet.PublicKey()))
	if err != nil {
		return nil, err
	}
	if err := wallet.Sign(tx); err != nil {
		return nil, err
	}
	return tx, nil
}
