// Package pump builds and decodes pump.fun bonding curve program data:
// PDAs, the bonding curve account, and create/buy/sell instructions.
package pump

import (
	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/constants"
)

// ProgramKey is the pump bonding curve program.
var ProgramKey = constants.PumpProgramID

func findPDA(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(seeds, programID)
	return pk, err
}

// GlobalPDA derives the program's global config account.
func GlobalPDA() (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedGlobal))
}

// MintAuthorityPDA derives the shared mint authority.
func MintAuthorityPDA() (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedMintAuthority))
}

// EventAuthorityPDA derives the anchor event authority.
func EventAuthorityPDA() (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedEventAuthority))
}

// BondingCurvePDA derives the bonding curve account of a mint.
func BondingCurvePDA(mint solana.PublicKey) (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedBondingCurve), mint[:])
}

// CreatorVaultPDA derives the creator fee vault.
func CreatorVaultPDA(creator solana.PublicKey) (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedCreatorVault), creator[:])
}

// GlobalVolumeAccumulatorPDA derives the global volume tracker.
func GlobalVolumeAccumulatorPDA() (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedGlobalVolumeAccumulator))
}

// UserVolumeAccumulatorPDA derives the per-user volume tracker.
func UserVolumeAccumulatorPDA(user solana.PublicKey) (solana.PublicKey, error) {
	return findPDA(ProgramKey, []byte(constants.SeedUserVolumeAccumulator), user[:])
}

// FeeConfigPDA derives the fee config owned by the fee program.
func FeeConfigPDA() (solana.PublicKey, error) {
	return findPDA(constants.PumpFeeProgramID, []byte(constants.SeedFeeConfig), ProgramKey[:])
}

// MetadataPDA derives the metaplex metadata account of a mint.
func MetadataPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	return findPDA(constants.MetadataProgramID,
		[]byte(constants.SeedMetadata),
		constants.MetadataProgramID[:],
		mint[:],
	)
}

// AssociatedTokenAddress derives the SPL token ATA of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	return findPDA(constants.AssociatedTokenProgramID,
		owner[:],
		constants.TokenProgramID[:],
		mint[:],
	)
}
