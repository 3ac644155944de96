// Package vault implements CryptoVault: authenticated symmetric
// encryption of arbitrary byte payloads, keyed by a user-supplied
// password. Every encrypted Payload carries its own salt, IV, auth tag,
// iteration count, and version, so it is individually portable — the AOL
// backend relies on this to encrypt each log line independently.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/leandroasilva/lmcs-db/internal/errs"
)

const (
	saltSize       = 32
	ivSize         = 16
	keySize        = 32
	pbkdf2Iters    = 100_000
	currentVersion = 1
)

// Payload is the self-describing encrypted envelope. Every field is
// hex-encoded so the envelope round-trips through encoding/json without
// binary-safety concerns (critical for the AOL, where each line must
// remain valid UTF-8 NDJSON).
type Payload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	Version    int    `json:"version"`
}

// Vault performs PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM
// authenticated encryption, keyed by a single password for its lifetime.
type Vault struct {
	password string
}

// New returns a Vault keyed by password. It accepts any password,
// including an empty one; Database construction only builds a Vault when
// the configured encryption key is non-empty.
func New(password string) *Vault {
	return &Vault{password: password}
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

// Encrypt seals plaintext into a self-describing Payload.
func (v *Vault) Encrypt(plaintext []byte) (*Payload, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errs.WrapCrypto("crypto.rand_salt", "failed to generate salt", err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errs.WrapCrypto("crypto.rand_iv", "failed to generate iv", err)
	}

	key := deriveKey(v.password, salt, pbkdf2Iters)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.cipher", "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.gcm", "failed to construct GCM mode", err)
	}

	// Seal appends the auth tag to the ciphertext; split it back out so the
	// envelope carries an explicit authTag field per spec.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return &Payload{
		Ciphertext: hex.EncodeToString(ciphertext),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
		Salt:       hex.EncodeToString(salt),
		Iterations: pbkdf2Iters,
		Version:    currentVersion,
	}, nil
}

// Decrypt opens a Payload, returning a CryptoError on auth-tag mismatch
// (the canonical symptom of a wrong password) or a malformed envelope.
func (v *Vault) Decrypt(p *Payload) ([]byte, error) {
	if p == nil {
		return nil, errs.NewCrypto("crypto.nil_payload", "payload is nil")
	}

	salt, err := hex.DecodeString(p.Salt)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.bad_salt", "malformed salt", err)
	}
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.bad_iv", "malformed iv", err)
	}
	tag, err := hex.DecodeString(p.AuthTag)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.bad_tag", "malformed auth tag", err)
	}
	ciphertext, err := hex.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.bad_ciphertext", "malformed ciphertext", err)
	}

	iterations := p.Iterations
	if iterations == 0 {
		iterations = pbkdf2Iters
	}
	key := deriveKey(v.password, salt, iterations)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.cipher", "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, errs.WrapCrypto("crypto.gcm", "failed to construct GCM mode", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errs.WrapCrypto("crypto.auth_failed", "decryption failed: authentication tag mismatch", err)
	}
	return plaintext, nil
}

// Marshal serializes a Payload to JSON bytes.
func Marshal(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal parses JSON bytes into a Payload.
func Unmarshal(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errs.WrapCrypto("crypto.bad_envelope", "malformed encrypted envelope", err)
	}
	return &p, nil
}
