package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/klingnet-labs/klingnet-node/pkg/crypto"
	"github.com/klingnet-labs/klingnet-node/pkg/types"
)

// Header contains block metadata, including the VRF proof that won the
// slot lottery and the forger's identity. No PoW fields: the VRF lottery
// is the sole consensus mechanism.
type Header struct {
	PrevHash        types.Hash    `json:"prev_hash"`
	Height          uint64        `json:"height"`
	Slot            uint64        `json:"slot"`
	MerkleRoot      types.Hash    `json:"merkle_root"`
	VRFValue        [32]byte      `json:"vrf_value"`
	VRFProof        [96]byte      `json:"vrf_proof"`
	ForgerVRFPubKey [32]byte      `json:"forger_vrf_pubkey"`
	ForgerAddress   types.Address `json:"forger_address"`
	CoinbaseID      types.Hash    `json:"coinbase_id"`
}

// headerJSON is the JSON representation of Header with hex-encoded
// fixed-size byte-array fields.
type headerJSON struct {
	PrevHash        types.Hash    `json:"prev_hash"`
	Height          uint64        `json:"height"`
	Slot            uint64        `json:"slot"`
	MerkleRoot      types.Hash    `json:"merkle_root"`
	VRFValue        string        `json:"vrf_value"`
	VRFProof        string        `json:"vrf_proof"`
	ForgerVRFPubKey string        `json:"forger_vrf_pubkey"`
	ForgerAddress   types.Address `json:"forger_address"`
	CoinbaseID      types.Hash    `json:"coinbase_id"`
}

// MarshalJSON encodes the header with hex-encoded VRF fields.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		PrevHash:        h.PrevHash,
		Height:          h.Height,
		Slot:            h.Slot,
		MerkleRoot:      h.MerkleRoot,
		VRFValue:        hex.EncodeToString(h.VRFValue[:]),
		VRFProof:        hex.EncodeToString(h.VRFProof[:]),
		ForgerVRFPubKey: hex.EncodeToString(h.ForgerVRFPubKey[:]),
		ForgerAddress:   h.ForgerAddress,
		CoinbaseID:      h.CoinbaseID,
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with hex-encoded VRF fields.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.PrevHash = j.PrevHash
	h.Height = j.Height
	h.Slot = j.Slot
	h.MerkleRoot = j.MerkleRoot
	h.ForgerAddress = j.ForgerAddress
	h.CoinbaseID = j.CoinbaseID

	if err := decodeFixed(j.VRFValue, h.VRFValue[:]); err != nil {
		return err
	}
	if err := decodeFixed(j.VRFProof, h.VRFProof[:]); err != nil {
		return err
	}
	return decodeFixed(j.ForgerVRFPubKey, h.ForgerVRFPubKey[:])
}

// decodeFixed hex-decodes src into dst, leaving dst as all-zero when src
// is empty (the zero value round-trips).
func decodeFixed(src string, dst []byte) error {
	if src == "" {
		return nil
	}
	b, err := hex.DecodeString(src)
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Hash computes the block header hash:
// H(previous-hash || merkle-root || slot || height || coinbase-id).
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed to produce Header.Hash.
// Format: prev_hash(32) | merkle_root(32) | slot(8) | height(8) | coinbase_id(32)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 112)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Slot)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = append(buf, h.CoinbaseID[:]...)
	return buf
}
