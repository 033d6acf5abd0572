package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the byte length of the seed key derivation starts from.
const SeedSize = 64

// SeedFromMnemonic stretches a BIP-39 recovery phrase (plus an optional
// passphrase) into the 64-byte seed the player key is derived from. The
// phrase's checksum is verified first, so a mistyped word fails here instead
// of silently producing a wallet with a different address.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
