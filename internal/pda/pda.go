// Package pda derives program addresses: deterministic addresses that are
// guaranteed not to be ed25519 public keys, so no private key exists for them.
//
// An address is sha256(seed_0 || ... || seed_n || programID || marker). A
// candidate that decodes to a curve point is rejected; FindProgramAddress
// appends a one-byte bump seed, counting down from 255, until a candidate is
// off the curve.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/rickgao/reits-ledger/internal/model"
)

const (
	// MaxSeeds is the maximum number of seeds, including the bump.
	MaxSeeds = 16

	// MaxSeedLen is the maximum length of a single seed in bytes.
	MaxSeedLen = 32

	marker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLength is returned for too many or too long seeds.
	ErrMaxSeedLength = errors.New("seed length exceeded")

	// ErrOnCurve is returned when the derived candidate is a valid public key.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")

	// ErrNoViableBump is returned when every bump yields an on-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// CreateProgramAddress derives the address for the exact seeds given.
func CreateProgramAddress(seeds [][]byte, programID model.Address) (model.Address, error) {
	if len(seeds) > MaxSeeds {
		return model.Address{}, fmt.Errorf("%w: %d seeds", ErrMaxSeedLength, len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return model.Address{}, fmt.Errorf("%w: seed of %d bytes", ErrMaxSeedLength, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(marker))

	var addr model.Address
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr) {
		return model.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches for the highest bump that yields a valid
// program address. The bump must be stored to re-derive the address later.
func FindProgramAddress(seeds [][]byte, programID model.Address) (model.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return model.Address{}, 0, err
		}
	}
	return model.Address{}, 0, ErrNoViableBump
}

// MustFind is FindProgramAddress for fixed seeds known to be valid.
func MustFind(seeds [][]byte, programID model.Address) model.Address {
	addr, _, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsOnCurve reports whether addr decodes to an ed25519 curve point.
func IsOnCurve(addr model.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}
