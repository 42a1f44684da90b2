// Package program describes the S3MT presale Anchor program: its instruction
// set, its Config account and the discriminators Anchor prefixes them with.
//
// Instructions are encoded as an 8 byte discriminator, sha256("global:<name>")[:8],
// followed by the borsh encoding of the arguments. Accounts use the
// "account:<TypeName>" namespace instead.
package program

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the address the presale program is deployed at.
const DefaultProgramID = "5tz5xFvHNnJViiCZ3iHdgqrTC1GfcEvnB49KoxvQpR3D"

// Instruction names as declared by the program.
const (
	InstructionInitialize   = "initialize"
	InstructionPurchaseUSDC = "purchase_usdc"
	InstructionPurchaseSOL  = "purchase_sol"
	InstructionUpdateConfig = "update_config"
)

// configSeed is the PDA seed of the Config account.
var configSeed = []byte("config")

// accountNamespace is the Anchor sighash namespace for account discriminators.
const accountNamespace = "account"

var (
	initializeID   = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionInitialize)
	purchaseUSDCID = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionPurchaseUSDC)
	purchaseSOLID  = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionPurchaseSOL)
	updateConfigID = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, InstructionUpdateConfig)

	configAccountID = bin.SighashTypeID(accountNamespace, "Config")
)

// PurchaseUSDCArgs are the arguments of purchase_usdc. USDC has 6 decimals.
type PurchaseUSDCArgs struct {
	USDCAmount uint64 `json:"usdcAmount"`
	S3MTAmount uint64 `json:"s3mtAmount"`
}

// PurchaseSOLArgs are the arguments of purchase_sol. SOLAmount is in lamports.
type PurchaseSOLArgs struct {
	SOLAmount  uint64 `json:"solAmount"`
	S3MTAmount uint64 `json:"s3mtAmount"`
}

// InitializeArgs are the arguments of initialize.
type InitializeArgs struct {
	Treasury solana.PublicKey `json:"treasury"`
	USDCMint solana.PublicKey `json:"usdcMint"`
}

// UpdateConfigArgs are the arguments of update_config. Nil fields are left unchanged on chain.
type UpdateConfigArgs struct {
	Treasury *solana.PublicKey `json:"treasury,omitempty"`
	Paused   *bool             `json:"paused,omitempty"`
	USDCMint *solana.PublicKey `json:"usdcMint,omitempty"`
}

// ConfigAccount is the on-chain layout of the Config account.
type ConfigAccount struct {
	Admin    solana.PublicKey
	Treasury solana.PublicKey
	USDCMint solana.PublicKey
	Paused   bool
}

// ConfigAddress derives the Config PDA for the given program.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{configSeed}, programID)
	return addr, err
}
