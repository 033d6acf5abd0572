package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 derivation path constants.
// Full path: m/44'/60'/account'/0/index (standard EVM path).
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypeEther is the registered coin type for EVM chains (hardened).
	CoinTypeEther = bip32.FirstHardenedChild + 60

	// ChangeExternal is the external (receiving) chain.
	ChangeExternal = 0
)

// DeriveKey derives the ECDSA key at m/44'/60'/account'/0/index from a
// 64-byte BIP-39 seed.
func DeriveKey(seed []byte, account, index uint32) (*ecdsa.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	current := master
	for _, idx := range []uint32{
		PurposeBIP44,
		CoinTypeEther,
		bip32.FirstHardenedChild + account,
		ChangeExternal,
		index,
	} {
		current, err = current.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}

	// bip32 private keys are 33 bytes with a leading 0x00.
	raw := current.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("convert derived key: %w", err)
	}
	return key, nil
}

// AddressOf returns the EVM address controlled by the key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
