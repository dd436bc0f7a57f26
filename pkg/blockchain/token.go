package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Token2022ProgramID is the owner program of "Token-2022" mints.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// MintProgram returns the token program that owns a mint account.
// Unknown or missing mints default to the standard token program.
func (c *Client) MintProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	account, err := c.AccountInfo(ctx, mint)
	if err != nil {
		return solana.TokenProgramID, err
	}
	if account == nil {
		return solana.TokenProgramID, fmt.Errorf("mint %s not found", mint.String())
	}
	if account.Owner.Equals(Token2022ProgramID) {
		return Token2022ProgramID, nil
	}
	return solana.TokenProgramID, nil
}

// AssociatedTokenAddress derives the canonical token account for
// (owner, mint) under the given token program.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// NewCreateATAInstruction builds the create-associated-token-account
// instruction for any token program, including Token-2022.
func NewCreateATAInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, nil), nil
}

// MissingATAInstruction resolves the associated token account for
// (owner, mint), detecting the owning token program. When the account
// does not exist yet, the returned instruction creates it; otherwise the
// instruction is nil.
func (c *Client) MissingATAInstruction(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	program, err := c.MintProgram(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	ata, err := AssociatedTokenAddress(owner, mint, program)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	account, err := c.AccountInfo(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if account != nil {
		return ata, nil, nil
	}

	ix, err := NewCreateATAInstruction(owner, owner, mint, program)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return ata, ix, nil
}
