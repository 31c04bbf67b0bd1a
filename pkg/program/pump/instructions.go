package pump

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Instruction discriminators.
var (
	createDiscriminator = [8]byte{24, 30, 200, 40, 5, 28, 7, 119}
	buyDiscriminator    = [8]byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator   = [8]byte{51, 230, 133, 164, 1, 127, 131, 173}
)

// Metadata describes a token to create.
type Metadata struct {
	Name   string
	Symbol string
	URI    string
}

// Validate checks the metadata fields are present.
func (m Metadata) Validate() error {
	if err := types.ValidateNotBlank("name", m.Name); err != nil {
		return err
	}
	if err := types.ValidateNotBlank("symbol", m.Symbol); err != nil {
		return err
	}
	return types.ValidateNotBlank("uri", m.URI)
}

// BuyParams describes one buy against a curve. TokenAmount is the quoted
// output; MaxSolCost caps the lamports spent including slippage.
type BuyParams struct {
	Mint        solana.PublicKey
	Creator     solana.PublicKey
	TokenAmount uint64
	MaxSolCost  uint64
	// CreateATA prepends an idempotent ATA create for the buyer.
	CreateATA bool
}

// SellParams describes one sell against a curve.
type SellParams struct {
	Mint         solana.PublicKey
	Creator      solana.PublicKey
	TokenAmount  uint64
	MinSolOutput uint64
}

// Adapter builds pump instructions. The zero value uses the default fee recipient.
type Adapter struct {
	FeeRecipient solana.PublicKey
	TrackVolume  bool
}

// NewAdapter returns an adapter with volume tracking on.
func NewAdapter(feeRecipient solana.PublicKey) *Adapter {
	return &Adapter{FeeRecipient: feeRecipient, TrackVolume: true}
}

func (a *Adapter) feeRecipient() solana.PublicKey {
	if a == nil || a.FeeRecipient.IsZero() {
		return constants.DefaultFeeRecipient
	}
	return a.FeeRecipient
}

// BuildCreate builds the create instruction for a mint keyed by mintKey.
// The mint key must co-sign the transaction.
func (a *Adapter) BuildCreate(creator solana.PublicKey, meta Metadata, mintKey solana.PrivateKey) (solana.Instruction, solana.PublicKey, error) {
	if err := types.ValidatePublicKey("creator", creator); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if err := meta.Validate(); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if len(mintKey) != 64 {
		return nil, solana.PublicKey{}, types.NewValidationError("mintKey", "must be a 64-byte keypair")
	}
	mint := mintKey.PublicKey()

	mintAuthority, err := MintAuthorityPDA()
	if err != nil {
		return nil, mint, err
	}
	bondingCurve, err := BondingCurvePDA(mint)
	if err != nil {
		return nil, mint, err
	}
	assocBC, err := AssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return nil, mint, err
	}
	global, err := GlobalPDA()
	if err != nil {
		return nil, mint, err
	}
	metadata, err := MetadataPDA(mint)
	if err != nil {
		return nil, mint, err
	}
	eventAuthority, err := EventAuthorityPDA()
	if err != nil {
		return nil, mint, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := writeAll(
		func() error { return enc.WriteBytes(createDiscriminator[:], false) },
		func() error { return enc.WriteString(meta.Name) },
		func() error { return enc.WriteString(meta.Symbol) },
		func() error { return enc.WriteString(meta.URI) },
		func() error { return enc.WriteBytes(creator[:], false) },
	); err != nil {
		return nil, mint, fmt.Errorf("encode create args: %w", err)
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, true),
		solana.NewAccountMeta(mintAuthority, false, false),
		solana.NewAccountMeta(bondingCurve, true, false),
		solana.NewAccountMeta(assocBC, true, false),
		solana.NewAccountMeta(global, false, false),
		solana.NewAccountMeta(constants.MetadataProgramID, false, false),
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(creator, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(constants.AssociatedTokenProgramID, false, false),
		solana.NewAccountMeta(constants.SysvarRentProgramID, false, false),
		solana.NewAccountMeta(eventAuthority, false, false),
		solana.NewAccountMeta(ProgramKey, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, buf.Bytes()), mint, nil
}

// tradeAccounts are the accounts shared by buy and sell.
type tradeAccounts struct {
	global         solana.PublicKey
	bondingCurve   solana.PublicKey
	assocBC        solana.PublicKey
	assocUser      solana.PublicKey
	creatorVault   solana.PublicKey
	eventAuthority solana.PublicKey
	feeConfig      solana.PublicKey
}

func deriveTradeAccounts(user, mint, creator solana.PublicKey) (tradeAccounts, error) {
	var ta tradeAccounts
	var err error
	if ta.global, err = GlobalPDA(); err != nil {
		return ta, err
	}
	if ta.bondingCurve, err = BondingCurvePDA(mint); err != nil {
		return ta, err
	}
	if ta.assocBC, err = AssociatedTokenAddress(ta.bondingCurve, mint); err != nil {
		return ta, err
	}
	if ta.assocUser, err = AssociatedTokenAddress(user, mint); err != nil {
		return ta, err
	}
	if ta.creatorVault, err = CreatorVaultPDA(creator); err != nil {
		return ta, err
	}
	if ta.eventAuthority, err = EventAuthorityPDA(); err != nil {
		return ta, err
	}
	if ta.feeConfig, err = FeeConfigPDA(); err != nil {
		return ta, err
	}
	return ta, nil
}

// BuildBuy builds the buy instruction list for buyer: an optional idempotent
// ATA create followed by the buy itself.
func (a *Adapter) BuildBuy(buyer solana.PublicKey, p BuyParams) ([]solana.Instruction, error) {
	if err := types.ValidatePublicKey("buyer", buyer); err != nil {
		return nil, err
	}
	if err := types.ValidatePublicKey("mint", p.Mint); err != nil {
		return nil, err
	}
	if err := types.ValidatePublicKey("creator", p.Creator); err != nil {
		return nil, err
	}
	if p.TokenAmount == 0 {
		return nil, types.NewValidationError("tokenAmount", "must be greater than 0")
	}
	if p.MaxSolCost == 0 {
		return nil, types.NewValidationError("maxSolCost", "must be greater than 0")
	}

	ta, err := deriveTradeAccounts(buyer, p.Mint, p.Creator)
	if err != nil {
		return nil, fmt.Errorf("derive buy accounts: %w", err)
	}
	globalVolume, err := GlobalVolumeAccumulatorPDA()
	if err != nil {
		return nil, err
	}
	userVolume, err := UserVolumeAccumulatorPDA(buyer)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := writeAll(
		func() error { return enc.WriteBytes(buyDiscriminator[:], false) },
		func() error { return enc.WriteUint64(p.TokenAmount, bin.LE) },
		func() error { return enc.WriteUint64(p.MaxSolCost, bin.LE) },
		func() error { return enc.WriteBool(a == nil || a.TrackVolume) },
	); err != nil {
		return nil, fmt.Errorf("encode buy args: %w", err)
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(ta.global, false, false),
		solana.NewAccountMeta(a.feeRecipient(), true, false),
		solana.NewAccountMeta(p.Mint, false, false),
		solana.NewAccountMeta(ta.bondingCurve, true, false),
		solana.NewAccountMeta(ta.assocBC, true, false),
		solana.NewAccountMeta(ta.assocUser, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(ta.creatorVault, true, false),
		solana.NewAccountMeta(ta.eventAuthority, false, false),
		solana.NewAccountMeta(ProgramKey, false, false),
		solana.NewAccountMeta(globalVolume, true, false),
		solana.NewAccountMeta(userVolume, true, false),
		solana.NewAccountMeta(ta.feeConfig, false, false),
		solana.NewAccountMeta(constants.PumpFeeProgramID, false, false),
	}

	var instrs []solana.Instruction
	if p.CreateATA {
		instrs = append(instrs, CreateATAIdempotent(buyer, buyer, p.Mint, ta.assocUser))
	}
	return append(instrs, solana.NewInstruction(ProgramKey, metas, buf.Bytes())), nil
}

// BuildSell builds the sell instruction for seller.
func (a *Adapter) BuildSell(seller solana.PublicKey, p SellParams) (solana.Instruction, error) {
	if err := types.ValidatePublicKey("seller", seller); err != nil {
		return nil, err
	}
	if err := types.ValidatePublicKey("mint", p.Mint); err != nil {
		return nil, err
	}
	if err := types.ValidatePublicKey("creator", p.Creator); err != nil {
		return nil, err
	}
	if err := types.ValidateSellParams(p.TokenAmount); err != nil {
		return nil, err
	}

	ta, err := deriveTradeAccounts(seller, p.Mint, p.Creator)
	if err != nil {
		return nil, fmt.Errorf("derive sell accounts: %w", err)
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := writeAll(
		func() error { return enc.WriteBytes(sellDiscriminator[:], false) },
		func() error { return enc.WriteUint64(p.TokenAmount, bin.LE) },
		func() error { return enc.WriteUint64(p.MinSolOutput, bin.LE) },
	); err != nil {
		return nil, fmt.Errorf("encode sell args: %w", err)
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(ta.global, false, false),
		solana.NewAccountMeta(a.feeRecipient(), true, false),
		solana.NewAccountMeta(p.Mint, false, false),
		solana.NewAccountMeta(ta.bondingCurve, true, false),
		solana.NewAccountMeta(ta.assocBC, true, false),
		solana.NewAccountMeta(ta.assocUser, true, false),
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(ta.creatorVault, true, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(ta.eventAuthority, false, false),
		solana.NewAccountMeta(ProgramKey, false, false),
		solana.NewAccountMeta(ta.feeConfig, false, false),
		solana.NewAccountMeta(constants.PumpFeeProgramID, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, buf.Bytes()), nil
}

// CreateATAIdempotent builds an associated token account create that
// succeeds when the account already exists.
func CreateATAIdempotent(payer, owner, mint, ata solana.PublicKey) solana.Instruction {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
	}
	return solana.NewInstruction(constants.AssociatedTokenProgramID, metas, []byte{1})
}

func writeAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
