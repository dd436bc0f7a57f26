// Package flashloan wraps the on-chain flash-loan program as an opaque
// instruction factory: borrow, repay, and the one-shot admin fee update.
// The program enforces atomicity through a receipt account created on
// borrow and closed on repay; a transaction that borrows without
// repaying leaves the receipt occupied and blocks further borrows by
// that signer.
package flashloan

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const receiptSeed = "flash_loan_receipt"

// Program binds the flash-loan program id to its pool and vault accounts.
type Program struct {
	ProgramID solana.PublicKey
	Pool      solana.PublicKey
	TokenMint solana.PublicKey
	Vault     solana.PublicKey
}

// PoolState is the decoded on-chain pool account.
type PoolState struct {
	Admin           solana.PublicKey
	TokenMint       solana.PublicKey
	Vault           solana.PublicKey
	TotalDeposits   uint64
	TotalShares     uint64
	TotalFeesEarned uint64
	FeeBasisPoints  uint16
	IsActive        bool
}

// New creates a program handle. The pool account is the program's single
// pool PDA; the vault is read from pool state at preflight.
func New(programID, pool, tokenMint solana.PublicKey) *Program {
	return &Program{
		ProgramID: programID,
		Pool:      pool,
		TokenMint: tokenMint,
	}
}

// anchorDiscriminator returns the 8-byte instruction discriminator for a
// global instruction name.
func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// ReceiptPDA derives the borrower's flash-loan receipt address.
func ReceiptPDA(programID, pool, borrower solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(receiptSeed), pool.Bytes(), borrower.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive receipt pda: %w", err)
	}
	return addr, nil
}

// Borrow builds the flash_borrow instruction for `amount` of the pool token.
func (p *Program) Borrow(amount uint64, borrower, borrowerATA solana.PublicKey) (solana.Instruction, error) {
	receipt, err := ReceiptPDA(p.ProgramID, p.Pool, borrower)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 16)
	data = append(data, anchorDiscriminator("flash_borrow")...)
	data = binary.LittleEndian.AppendUint64(data, amount)

	accounts := solana.AccountMetaSlice{
		{PublicKey: p.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: receipt, IsSigner: false, IsWritable: true},
		{PublicKey: p.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: borrowerATA, IsSigner: false, IsWritable: true},
		{PublicKey: borrower, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(p.ProgramID, accounts, data), nil
}

// Repay builds the flash_repay instruction. The amount is implicit: the
// program reads borrow + fee from the receipt.
func (p *Program) Repay(borrower, borrowerATA solana.PublicKey) (solana.Instruction, error) {
	receipt, err := ReceiptPDA(p.ProgramID, p.Pool, borrower)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: p.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: receipt, IsSigner: false, IsWritable: true},
		{PublicKey: p.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: borrowerATA, IsSigner: false, IsWritable: true},
		{PublicKey: borrower, IsSigner: true, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(p.ProgramID, accounts, anchorDiscriminator("flash_repay")), nil
}

// UpdateFee builds the admin-only update_fee instruction.
func (p *Program) UpdateFee(admin solana.PublicKey, feeBps uint16) solana.Instruction {
	data := make([]byte, 0, 10)
	data = append(data, anchorDiscriminator("update_fee")...)
	data = binary.LittleEndian.AppendUint16(data, feeBps)

	accounts := solana.AccountMetaSlice{
		{PublicKey: p.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: admin, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(p.ProgramID, accounts, data)
}

// DecodePoolState decodes the borsh-serialized pool account data. The
// leading 8 bytes are the account discriminator.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("pool account too short: %d bytes", len(data))
	}

	decoder := bin.NewBorshDecoder(data[8:])
	state := &PoolState{}

	fields := []interface{}{
		&state.Admin,
		&state.TokenMint,
		&state.Vault,
		&state.TotalDeposits,
		&state.TotalShares,
		&state.TotalFeesEarned,
		&state.FeeBasisPoints,
		&state.IsActive,
	}
	for _, field := range fields {
		if err := decoder.Decode(field); err != nil {
			return nil, fmt.Errorf("decode pool state: %w", err)
		}
	}
	return state, nil
}
