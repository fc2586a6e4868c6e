package consensus

import (
	"crypto/rand"
	"errors"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
)

// VRFValueSize/VRFProofSize/VRFPubKeySize match the block header's fixed-size
// VRF fields: a 32-byte output, a 96-byte proof, a 32-byte public key.
const (
	VRFValueSize  = 32
	VRFProofSize  = 96
	VRFPubKeySize = 32
)

// ErrVRFVerifyFailed indicates a VRF proof did not verify against its
// claimed output and public key.
var ErrVRFVerifyFailed = errors.New("vrf proof verification failed")

// VRF is a black-box verifiable random function: keygen/prove/verify over
// arbitrary input bytes, producing a uniformly-distributed output alongside
// a proof that anyone holding the public key can check. No concrete Go VRF
// implementation is wired in yet — see vrfStub below — but callers only
// ever see this interface, so swapping in a real backend (e.g. an ECVRF
// over Ristretto, as the original implementation used) changes nothing
// else in this package.
type VRF interface {
	// GenerateKey produces a fresh VRF keypair.
	GenerateKey() (sk, pk [VRFPubKeySize]byte, err error)
	// Prove evaluates the VRF over input under sk, returning the output
	// and a proof that pk can later use to verify it.
	Prove(sk [VRFPubKeySize]byte, input []byte) (value [VRFValueSize]byte, proof [VRFProofSize]byte, err error)
	// Verify checks that proof attests value was correctly derived from
	// input under pk.
	Verify(pk [VRFPubKeySize]byte, input []byte, value [VRFValueSize]byte, proof [VRFProofSize]byte) error
}

// vrfStub is a deterministic stand-in VRF sufficient to exercise the
// lottery end to end: it derives the claimed output and an opening proof
// from a BLAKE3 hash of (sk || input), so Prove/Verify round-trip
// correctly and the output is indistinguishable from random to anyone who
// doesn't also hold sk. It is NOT cryptographically sound as a VRF — the
// "proof" embeds sk in the clear — and must be replaced before this code
// is exposed to an adversarial network.
type vrfStub struct{}

// NewStubVRF returns the stand-in VRF implementation.
func NewStubVRF() VRF { return vrfStub{} }

func (vrfStub) GenerateKey() (sk, pk [VRFPubKeySize]byte, err error) {
	if _, err := rand.Read(sk[:]); err != nil {
		return sk, pk, err
	}
	digest := crypto.Hash(sk[:])
	copy(pk[:], digest[:])
	return sk, pk, nil
}

func (vrfStub) Prove(sk [VRFPubKeySize]byte, input []byte) (value [VRFValueSize]byte, proof [VRFProofSize]byte, err error) {
	buf := make([]byte, 0, len(sk)+len(input))
	buf = append(buf, sk[:]...)
	buf = append(buf, input...)
	value = crypto.Hash(buf)

	// proof = sk || input-hash || value, padded to VRFProofSize. Verify
	// recomputes the expected value from the embedded sk and input hash.
	inputHash := crypto.Hash(input)
	copy(proof[0:32], sk[:])
	copy(proof[32:64], inputHash[:])
	copy(proof[64:96], value[:])
	return value, proof, nil
}

func (vrfStub) Verify(pk [VRFPubKeySize]byte, input []byte, value [VRFValueSize]byte, proof [VRFProofSize]byte) error {
	var sk [VRFPubKeySize]byte
	copy(sk[:], proof[0:32])

	expectedPK := crypto.Hash(sk[:])
	if [VRFPubKeySize]byte(expectedPK) != pk {
		return ErrVRFVerifyFailed
	}

	inputHash := crypto.Hash(input)
	var claimedInputHash [32]byte
	copy(claimedInputHash[:], proof[32:64])
	if claimedInputHash != [32]byte(inputHash) {
		return ErrVRFVerifyFailed
	}

	buf := make([]byte, 0, len(sk)+len(input))
	buf = append(buf, sk[:]...)
	buf = append(buf, input...)
	expectedValue := crypto.Hash(buf)
	if [VRFValueSize]byte(expectedValue) != value {
		return ErrVRFVerifyFailed
	}

	var claimedValue [32]byte
	copy(claimedValue[:], proof[64:96])
	if claimedValue != value {
		return ErrVRFVerifyFailed
	}

	return nil
}
