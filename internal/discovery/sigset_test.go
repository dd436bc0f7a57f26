package discovery

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sigFromInt(i int) solana.Signature {
	var sig solana.Signature
	sig[0] = byte(i)
	sig[1] = byte(i >> 8)
	sig[2] = byte(i >> 16)
	return sig
}

func TestSigSet_NeverEmitsTwice(t *testing.T) {
	set := newSigSet()
	sig := sigFromInt(1)

	assert.True(t, set.Add(sig))
	for i := 0; i < 10; i++ {
		assert.False(t, set.Add(sig))
	}
}

func TestSigSet_OverflowRetainsRecent(t *testing.T) {
	set := newSigSet()

	for i := 0; i < sigSetCap+1; i++ {
		require.True(t, set.Add(sigFromInt(i)))
	}

	// Trimmed down to the most recent half.
	assert.Equal(t, sigSetTrim, set.Len())

	// The newest signatures are still deduplicated.
	assert.False(t, set.Add(sigFromInt(sigSetCap)))
	// The oldest were dropped and may be re-admitted.
	assert.True(t, set.Add(sigFromInt(0)))
}

func TestMatchesAny(t *testing.T) {
	logs := []string{
		"Program log: ok",
		"Program log: Instruction: InitializeLbPair",
	}
	assert.True(t, matchesAny(logs, poolInitPatterns))
	assert.False(t, matchesAny([]string{"Program log: transfer"}, poolInitPatterns))
	assert.False(t, matchesAny(nil, poolInitPatterns))
}
