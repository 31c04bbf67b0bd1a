package pump

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// bondingCurveSize is discriminator + 5 u64 + bool + pubkey.
const bondingCurveSize = 8 + 5*8 + 1 + 32

// Initial reserves of every freshly created curve.
const (
	InitialVirtualTokenReserves uint64 = 1_073_000_000_000_000
	InitialVirtualSolReserves   uint64 = 30_000_000_000
	InitialRealTokenReserves    uint64 = 793_100_000_000_000
	InitialTokenTotalSupply     uint64 = 1_000_000_000_000_000
)

// BondingCurve is a decoded snapshot of a bonding curve account.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

// InitialBondingCurve returns the state a curve starts with right after create.
func InitialBondingCurve(creator solana.PublicKey) BondingCurve {
	return BondingCurve{
		VirtualTokenReserves: InitialVirtualTokenReserves,
		VirtualSolReserves:   InitialVirtualSolReserves,
		RealTokenReserves:    InitialRealTokenReserves,
		TokenTotalSupply:     InitialTokenTotalSupply,
		Creator:              creator,
	}
}

// DecodeBondingCurve parses raw account data. The leading 8-byte account
// discriminator is skipped, not checked.
func DecodeBondingCurve(data []byte) (BondingCurve, error) {
	var bc BondingCurve
	if len(data) < bondingCurveSize {
		return bc, fmt.Errorf("bonding curve data too short: %d < %d", len(data), bondingCurveSize)
	}
	dec := bin.NewBorshDecoder(data[8:])

	fields := []*uint64{
		&bc.VirtualTokenReserves,
		&bc.VirtualSolReserves,
		&bc.RealTokenReserves,
		&bc.RealSolReserves,
		&bc.TokenTotalSupply,
	}
	for _, f := range fields {
		v, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return bc, fmt.Errorf("decode bonding curve: %w", err)
		}
		*f = v
	}
	complete, err := dec.ReadBool()
	if err != nil {
		return bc, fmt.Errorf("decode bonding curve complete: %w", err)
	}
	bc.Complete = complete
	creator, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return bc, fmt.Errorf("decode bonding curve creator: %w", err)
	}
	bc.Creator = solana.PublicKeyFromBytes(creator)
	return bc, nil
}

// Encode serializes the snapshot back to account layout with a zero discriminator.
func (bc BondingCurve) Encode() []byte {
	out := make([]byte, 8, bondingCurveSize)
	for _, v := range []uint64{
		bc.VirtualTokenReserves,
		bc.VirtualSolReserves,
		bc.RealTokenReserves,
		bc.RealSolReserves,
		bc.TokenTotalSupply,
	} {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	if bc.Complete {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return append(out, bc.Creator[:]...)
}
