package program

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// discriminatorSize is the length of an Anchor discriminator.
const discriminatorSize = 8

// Decoder errors
var (
	ErrDataTooShort       = errors.New("data shorter than discriminator")
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")
	ErrUnknownAccount     = errors.New("unknown account discriminator")
)

// Instruction is a decoded presale instruction.
type Instruction struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type argsDecoder func(dec *bin.Decoder) (any, error)

var instructions = map[bin.TypeID]struct {
	name   string
	decode argsDecoder
}{
	initializeID:   {InstructionInitialize, decodeInto[InitializeArgs]},
	purchaseUSDCID: {InstructionPurchaseUSDC, decodeInto[PurchaseUSDCArgs]},
	purchaseSOLID:  {InstructionPurchaseSOL, decodeInto[PurchaseSOLArgs]},
	updateConfigID: {InstructionUpdateConfig, decodeUpdateConfig},
}

// Decode interprets raw instruction data against the presale schema.
//
// The first eight bytes select the instruction, the remainder is decoded as
// the borsh encoded argument struct. Trailing bytes are ignored, like Anchor does.
func Decode(data []byte) (*Instruction, error) {
	id, err := discriminator(data)
	if err != nil {
		return nil, err
	}

	def, ok := instructions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownInstruction, id[:])
	}

	args, err := def.decode(bin.NewBorshDecoder(data[discriminatorSize:]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s args: %w", def.name, err)
	}

	return &Instruction{Name: def.name, Args: args}, nil
}

// DecodeBase58 decodes base58 instruction data, as shown by explorers, and
// then decodes the instruction.
func DecodeBase58(s string) (*Instruction, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 data: %w", err)
	}
	return Decode(data)
}

// DecodeConfigAccount decodes the data of the Config PDA.
func DecodeConfigAccount(data []byte) (*ConfigAccount, error) {
	id, err := discriminator(data)
	if err != nil {
		return nil, err
	}
	if id != configAccountID {
		return nil, fmt.Errorf("%w: %x", ErrUnknownAccount, id[:])
	}

	var cfg ConfigAccount
	if err := bin.NewBorshDecoder(data[discriminatorSize:]).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config account: %w", err)
	}
	return &cfg, nil
}

func discriminator(data []byte) (bin.TypeID, error) {
	var id bin.TypeID
	if len(data) < discriminatorSize {
		return id, fmt.Errorf("%w: got %d bytes", ErrDataTooShort, len(data))
	}
	copy(id[:], data[:discriminatorSize])
	return id, nil
}

func decodeInto[T any](dec *bin.Decoder) (any, error) {
	var args T
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

// decodeUpdateConfig reads the three borsh Option fields of update_config.
func decodeUpdateConfig(dec *bin.Decoder) (any, error) {
	var args UpdateConfigArgs

	treasury, err := readOptionalKey(dec)
	if err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}
	args.Treasury = treasury

	present, err := dec.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("paused: %w", err)
	}
	if present {
		paused, err := dec.ReadBool()
		if err != nil {
			return nil, fmt.Errorf("paused: %w", err)
		}
		args.Paused = &paused
	}

	mint, err := readOptionalKey(dec)
	if err != nil {
		return nil, fmt.Errorf("usdc mint: %w", err)
	}
	args.USDCMint = mint

	return args, nil
}

func readOptionalKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	present, err := dec.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	key := solana.PublicKeyFromBytes(raw)
	return &key, nil
}
