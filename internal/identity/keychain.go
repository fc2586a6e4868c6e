package identity

import (
	"fmt"

	"github.com/klingnet-labs/klingnet-node/internal/consensus"
	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 derivation path constants for the node's signing key.
// Full path: m/44'/CoinTypeKlingnet'/0'/0/0 — a node has exactly one
// signing identity, so no account/change/index fan-out is needed.
const (
	PurposeBIP44     = bip32.FirstHardenedChild + 44
	CoinTypeKlingnet = bip32.FirstHardenedChild + 8888
)

// NodeKeyChain holds one node's forging identity: the secp256k1 signing
// key that receives block rewards, and the VRF keypair that wins slots.
// Constructed once at start-up and threaded into the node handle — there
// is no module-level identity state (spec.md §9's "replace the
// process-wide wallet identity" design note).
type NodeKeyChain struct {
	SigningKey *crypto.PrivateKey
	Address    types.Address

	VRFSecretKey [consensus.VRFPubKeySize]byte
	VRFPublicKey [consensus.VRFPubKeySize]byte
}

// deriveSigningKey derives the node's secp256k1 signing key at
// m/44'/8888'/0'/0/0 from a BIP-39 seed.
func deriveSigningKey(seed []byte) (*crypto.PrivateKey, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	child, err := master.NewChildKey(PurposeBIP44)
	if err != nil {
		return nil, fmt.Errorf("derive purpose: %w", err)
	}
	child, err = child.NewChildKey(CoinTypeKlingnet)
	if err != nil {
		return nil, fmt.Errorf("derive coin type: %w", err)
	}
	child, err = child.NewChildKey(bip32.FirstHardenedChild + 0) // account 0
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	child, err = child.NewChildKey(0) // change (external)
	if err != nil {
		return nil, fmt.Errorf("derive change: %w", err)
	}
	child, err = child.NewChildKey(0) // index 0
	if err != nil {
		return nil, fmt.Errorf("derive index: %w", err)
	}

	raw := child.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// NewNodeKeyChain derives the signing key deterministically from seed and
// generates a fresh VRF keypair via vrf (VRF keys have no standardized HD
// derivation, so unlike the signing key they are generated once and
// persisted rather than re-derived from the seed on every load).
func NewNodeKeyChain(seed []byte, vrf consensus.VRF) (*NodeKeyChain, error) {
	signingKey, err := deriveSigningKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	vrfSK, vrfPK, err := vrf.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate vrf key: %w", err)
	}

	return &NodeKeyChain{
		SigningKey:   signingKey,
		Address:      addressFromSigningKey(signingKey),
		VRFSecretKey: vrfSK,
		VRFPublicKey: vrfPK,
	}, nil
}

// addressFromSigningKey derives the node's P2PKH-style address from its
// signing key's public key.
func addressFromSigningKey(k *crypto.PrivateKey) types.Address {
	return crypto.AddressFromPubKey(k.PublicKey())
}
