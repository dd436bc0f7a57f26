package flashloan

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProgram() (*Program, solana.PublicKey, solana.PublicKey) {
	programID := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	p := New(programID, pool, mint)
	p.Vault = solana.NewWallet().PublicKey()
	return p, programID, pool
}

func TestReceiptPDA_Deterministic(t *testing.T) {
	_, programID, pool := testProgram()
	borrower := solana.NewWallet().PublicKey()

	first, err := ReceiptPDA(programID, pool, borrower)
	require.NoError(t, err)
	second, err := ReceiptPDA(programID, pool, borrower)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A different borrower yields a different receipt.
	other, err := ReceiptPDA(programID, pool, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestBorrow_InstructionShape(t *testing.T) {
	p, programID, pool := testProgram()
	borrower := solana.NewWallet().PublicKey()
	borrowerATA := solana.NewWallet().PublicKey()

	ix, err := p.Borrow(123_456_789, borrower, borrowerATA)
	require.NoError(t, err)
	assert.Equal(t, programID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 7)
	assert.Equal(t, pool, accounts[0].PublicKey)
	assert.Equal(t, p.Vault, accounts[2].PublicKey)
	assert.Equal(t, borrowerATA, accounts[3].PublicKey)
	assert.Equal(t, borrower, accounts[4].PublicKey)
	assert.True(t, accounts[4].IsSigner)
	assert.Equal(t, solana.SystemProgramID, accounts[5].PublicKey)
	assert.Equal(t, solana.TokenProgramID, accounts[6].PublicKey)

	receipt, err := ReceiptPDA(programID, pool, borrower)
	require.NoError(t, err)
	assert.Equal(t, receipt, accounts[1].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)

	wantDisc := sha256.Sum256([]byte("global:flash_borrow"))
	assert.Equal(t, wantDisc[:8], data[:8])
	assert.Equal(t, uint64(123_456_789), binary.LittleEndian.Uint64(data[8:]))
}

func TestRepay_InstructionShape(t *testing.T) {
	p, programID, pool := testProgram()
	borrower := solana.NewWallet().PublicKey()
	borrowerATA := solana.NewWallet().PublicKey()

	ix, err := p.Repay(borrower, borrowerATA)
	require.NoError(t, err)

	accounts := ix.Accounts()
	require.Len(t, accounts, 6)

	receipt, err := ReceiptPDA(programID, pool, borrower)
	require.NoError(t, err)
	assert.Equal(t, receipt, accounts[1].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	wantDisc := sha256.Sum256([]byte("global:flash_repay"))
	assert.Equal(t, wantDisc[:8], data)
}

func TestUpdateFee_InstructionShape(t *testing.T) {
	p, _, _ := testProgram()
	admin := solana.NewWallet().PublicKey()

	ix := p.UpdateFee(admin, 25)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 10)
	assert.Equal(t, uint16(25), binary.LittleEndian.Uint16(data[8:]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, admin, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsSigner)
}

func TestDecodePoolState(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()

	data := make([]byte, 0, 8+32*3+8*3+2+1)
	data = append(data, make([]byte, 8)...) // account discriminator
	data = append(data, admin.Bytes()...)
	data = append(data, mint.Bytes()...)
	data = append(data, vault.Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, 5_000_000_000)
	data = binary.LittleEndian.AppendUint64(data, 4_900_000_000)
	data = binary.LittleEndian.AppendUint64(data, 12_345)
	data = binary.LittleEndian.AppendUint16(data, 9)
	data = append(data, 1) // is_active

	state, err := DecodePoolState(data)
	require.NoError(t, err)
	assert.Equal(t, admin, state.Admin)
	assert.Equal(t, mint, state.TokenMint)
	assert.Equal(t, vault, state.Vault)
	assert.Equal(t, uint64(5_000_000_000), state.TotalDeposits)
	assert.Equal(t, uint64(4_900_000_000), state.TotalShares)
	assert.Equal(t, uint64(12_345), state.TotalFeesEarned)
	assert.Equal(t, uint16(9), state.FeeBasisPoints)
	assert.True(t, state.IsActive)
}

func TestDecodePoolState_TooShort(t *testing.T) {
	_, err := DecodePoolState([]byte{1, 2, 3})
	assert.Error(t, err)
}
