package program

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anchorDiscriminator computes sha256("<namespace>:<name>")[:8] independently of the decoder.
func anchorDiscriminator(namespace, name string) []byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	return sum[:8]
}

func encodeU64s(prefix []byte, values ...uint64) []byte {
	out := append([]byte{}, prefix...)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return out
}

func Test_Discriminators(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"initialize", initializeID[:], anchorDiscriminator("global", "initialize")},
		{"purchase_usdc", purchaseUSDCID[:], anchorDiscriminator("global", "purchase_usdc")},
		{"purchase_sol", purchaseSOLID[:], anchorDiscriminator("global", "purchase_sol")},
		{"update_config", updateConfigID[:], anchorDiscriminator("global", "update_config")},
		{"Config account", configAccountID[:], anchorDiscriminator("account", "Config")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func Test_Decode(t *testing.T) {
	treasury := solana.PublicKey{7}
	mint := solana.PublicKey{9}

	initData := append(anchorDiscriminator("global", "initialize"), treasury[:]...)
	initData = append(initData, mint[:]...)

	tests := []struct {
		name          string
		data          []byte
		expectName    string
		expectArgs    any
		expectError   bool
		errorContains string
	}{
		{
			name:       "purchase_usdc",
			data:       encodeU64s(anchorDiscriminator("global", "purchase_usdc"), 2_500_000, 1000),
			expectName: InstructionPurchaseUSDC,
			expectArgs: PurchaseUSDCArgs{USDCAmount: 2_500_000, S3MTAmount: 1000},
		},
		{
			name:       "purchase_sol with max u64 token amount",
			data:       encodeU64s(anchorDiscriminator("global", "purchase_sol"), 1_000_000_000, ^uint64(0)),
			expectName: InstructionPurchaseSOL,
			expectArgs: PurchaseSOLArgs{SOLAmount: 1_000_000_000, S3MTAmount: ^uint64(0)},
		},
		{
			name:       "initialize",
			data:       initData,
			expectName: InstructionInitialize,
			expectArgs: InitializeArgs{Treasury: treasury, USDCMint: mint},
		},
		{
			name:       "trailing bytes are ignored",
			data:       append(encodeU64s(anchorDiscriminator("global", "purchase_usdc"), 1, 2), 0xff, 0xff),
			expectName: InstructionPurchaseUSDC,
			expectArgs: PurchaseUSDCArgs{USDCAmount: 1, S3MTAmount: 2},
		},
		{
			name:          "too short",
			data:          []byte{1, 2, 3},
			expectError:   true,
			errorContains: "shorter than discriminator",
		},
		{
			name:          "unknown discriminator",
			data:          encodeU64s(anchorDiscriminator("global", "withdraw"), 1, 2),
			expectError:   true,
			errorContains: "unknown instruction",
		},
		{
			name:          "truncated args",
			data:          append(anchorDiscriminator("global", "purchase_sol"), 1, 2, 3),
			expectError:   true,
			errorContains: "failed to decode purchase_sol args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := Decode(tt.data)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, ix)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectName, ix.Name)
			assert.Equal(t, tt.expectArgs, ix.Args)
		})
	}
}

func Test_Decode_UpdateConfig(t *testing.T) {
	treasury := solana.PublicKey{3}

	t.Run("some fields set", func(t *testing.T) {
		data := anchorDiscriminator("global", "update_config")
		data = append(data, 1)
		data = append(data, treasury[:]...)
		data = append(data, 1, 1) // Some(true)
		data = append(data, 0)    // None

		ix, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, InstructionUpdateConfig, ix.Name)

		args, ok := ix.Args.(UpdateConfigArgs)
		require.True(t, ok)
		require.NotNil(t, args.Treasury)
		assert.Equal(t, treasury, *args.Treasury)
		require.NotNil(t, args.Paused)
		assert.True(t, *args.Paused)
		assert.Nil(t, args.USDCMint)
	})

	t.Run("all none", func(t *testing.T) {
		data := append(anchorDiscriminator("global", "update_config"), 0, 0, 0)

		ix, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, UpdateConfigArgs{}, ix.Args)
	})

	t.Run("missing option flag", func(t *testing.T) {
		data := append(anchorDiscriminator("global", "update_config"), 0)

		_, err := Decode(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "paused")
	})
}

func Test_DecodeBase58(t *testing.T) {
	raw := encodeU64s(anchorDiscriminator("global", "purchase_usdc"), 10_000_000, 500)

	ix, err := DecodeBase58(base58.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, InstructionPurchaseUSDC, ix.Name)
	assert.Equal(t, PurchaseUSDCArgs{USDCAmount: 10_000_000, S3MTAmount: 500}, ix.Args)

	_, err = DecodeBase58("0OIl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base58")
}

func Test_DecodeConfigAccount(t *testing.T) {
	admin := solana.PublicKey{1}
	treasury := solana.PublicKey{2}
	mint := solana.PublicKey{3}

	data := anchorDiscriminator("account", "Config")
	data = append(data, admin[:]...)
	data = append(data, treasury[:]...)
	data = append(data, mint[:]...)
	data = append(data, 1)

	cfg, err := DecodeConfigAccount(data)
	require.NoError(t, err)
	assert.Equal(t, admin, cfg.Admin)
	assert.Equal(t, treasury, cfg.Treasury)
	assert.Equal(t, mint, cfg.USDCMint)
	assert.True(t, cfg.Paused)

	_, err = DecodeConfigAccount(append(anchorDiscriminator("account", "Other"), data[8:]...))
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = DecodeConfigAccount(data[:4])
	assert.ErrorIs(t, err, ErrDataTooShort)
}

func Test_ConfigAddress(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58(DefaultProgramID)

	addr, err := ConfigAddress(programID)
	require.NoError(t, err)

	again, err := ConfigAddress(programID)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.False(t, addr.IsZero())
}
