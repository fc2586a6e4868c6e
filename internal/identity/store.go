package identity

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klingnet-labs/klingnet-node/internal/consensus"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionParams holds Argon2id parameters, identical in shape to the
// teacher's wallet.EncryptionParams.
type EncryptionParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns recommended Argon2id parameters.
func DefaultParams() EncryptionParams {
	return EncryptionParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

const (
	saltSize   = 32
	headerSize = saltSize + 4 + 4 + 1 // salt | memory | iterations | parallelism
)

func deriveKey(password, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

// encrypt encrypts data with password using Argon2id + XChaCha20-Poly1305.
// Output format: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext.
func encrypt(data, password []byte, params EncryptionParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// decrypt reverses encrypt.
func decrypt(encrypted, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("encrypted data too short: %d bytes, need at least %d", len(encrypted), minSize)
	}

	salt := encrypted[:saltSize]
	memory := binary.LittleEndian.Uint32(encrypted[saltSize:])
	iterations := binary.LittleEndian.Uint32(encrypted[saltSize+4:])
	parallelism := encrypted[saltSize+8]
	params := EncryptionParams{Memory: memory, Iterations: iterations, Parallelism: parallelism}

	nonce := encrypted[headerSize : headerSize+nonceSize]
	ciphertext := encrypted[headerSize+nonceSize:]

	key := deriveKey(password, salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// keyFile is the on-disk encrypted identity format: the BIP-39 seed and
// VRF secret key, both under one Argon2id/XChaCha20-Poly1305 envelope so
// a single password unlocks the whole identity.
type keyFile struct {
	Version      int    `json:"version"`
	EncryptedKey []byte `json:"encrypted_key"`
}

// plaintextIdentity is what's encrypted inside keyFile.EncryptedKey.
type plaintextIdentity struct {
	Seed         []byte `json:"seed"`
	VRFSecretKey []byte `json:"vrf_secret_key"`
	VRFPublicKey []byte `json:"vrf_public_key"`
}

const keyFileVersion = 1

// Exists reports whether an identity file is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create generates a fresh mnemonic and VRF keypair, derives the node's
// keychain, and persists it encrypted under password at path. Returns the
// keychain and the mnemonic — the caller (cmd/klingnetd) is responsible
// for printing the mnemonic exactly once and never logging it again.
func Create(path string, password []byte, vrf consensus.VRF, params EncryptionParams) (*NodeKeyChain, string, error) {
	if Exists(path) {
		return nil, "", fmt.Errorf("identity file already exists at %s", path)
	}

	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return nil, "", fmt.Errorf("generate mnemonic: %w", err)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, "", fmt.Errorf("derive seed: %w", err)
	}

	kc, err := NewNodeKeyChain(seed, vrf)
	if err != nil {
		return nil, "", fmt.Errorf("derive keychain: %w", err)
	}

	plain := plaintextIdentity{
		Seed:         seed,
		VRFSecretKey: kc.VRFSecretKey[:],
		VRFPublicKey: kc.VRFPublicKey[:],
	}
	plainBytes, err := json.Marshal(plain)
	if err != nil {
		return nil, "", fmt.Errorf("marshal identity: %w", err)
	}

	encrypted, err := encrypt(plainBytes, password, params)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt identity: %w", err)
	}

	kf := keyFile{Version: keyFileVersion, EncryptedKey: encrypted}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, "", fmt.Errorf("write key file: %w", err)
	}

	return kc, mnemonic, nil
}

// Load decrypts an existing identity file under password, reconstructing
// its keychain. The VRF secret key is read back verbatim (it was
// generated once at Create time, not re-derived).
func Load(path string, password []byte) (*NodeKeyChain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}

	plainBytes, err := decrypt(kf.EncryptedKey, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt key file: %w", err)
	}
	var plain plaintextIdentity
	if err := json.Unmarshal(plainBytes, &plain); err != nil {
		return nil, fmt.Errorf("parse decrypted identity: %w", err)
	}

	signingKey, err := deriveSigningKey(plain.Seed)
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	kc := &NodeKeyChain{
		SigningKey: signingKey,
		Address:    addressFromSigningKey(signingKey),
	}
	if len(plain.VRFSecretKey) != consensus.VRFPubKeySize || len(plain.VRFPublicKey) != consensus.VRFPubKeySize {
		return nil, fmt.Errorf("corrupt identity: vrf key size mismatch")
	}
	copy(kc.VRFSecretKey[:], plain.VRFSecretKey)
	copy(kc.VRFPublicKey[:], plain.VRFPublicKey)

	return kc, nil
}
