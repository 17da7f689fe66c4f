package nostr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Codec seals and opens event payloads between the bot and the platform.
// Both parties hold the same shared key material; a per-direction key is
// derived from it with HKDF so a signal sealed for the platform cannot be
// replayed back as a platform message.
type Codec struct {
	secret []byte
	shared []byte
}

// NewCodec builds a Codec from the bot's hex secret key and the platform's
// hex shared key.
func NewCodec(secretKeyHex, platformSharedHex string) (*Codec, error) {
	secret, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	shared, err := hex.DecodeString(platformSharedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid platform shared key: %w", err)
	}
	if len(secret) == 0 || len(shared) == 0 {
		return nil, fmt.Errorf("empty key material")
	}
	return &Codec{secret: secret, shared: shared}, nil
}

// deriveKey stretches the shared material into an XChaCha20-Poly1305 key
// bound to the sender/receiver direction.
func (c *Codec) deriveKey(senderPub, receiverPub string) ([]byte, error) {
	info := []byte("trade-signal:" + senderPub + ":" + receiverPub)
	r := hkdf.New(sha256.New, c.shared, c.secret, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext for the receiver and returns base64(nonce || ciphertext).
func (c *Codec) Seal(plaintext []byte, senderPub, receiverPub string) (string, error) {
	key, err := c.deriveKey(senderPub, receiverPub)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Open decrypts a sealed payload produced by Seal with the same direction.
func (c *Codec) Open(content, senderPub, receiverPub string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	key, err := c.deriveKey(senderPub, receiverPub)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("payload too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt failed: %w", err)
	}
	return plaintext, nil
}
