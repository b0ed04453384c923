package crypto

import (
	"fmt"

	"github.com/fernet/fernet-go"
)

// PlaceholderUnreadable is substituted for message content whose
// ciphertext cannot be decrypted. The read path never fails over one
// corrupt row; it renders this instead.
const PlaceholderUnreadable = "[encrypted message unreadable]"

// KeyProvider supplies the keys used for content encryption. Primary is
// used for every new encryption; Ring is consulted on decryption so old
// content stays readable across a key rotation.
type KeyProvider interface {
	Primary() *fernet.Key
	Ring() []*fernet.Key
}

// StaticKeyProvider holds a single process-wide key.
type StaticKeyProvider struct {
	key *fernet.Key
}

// NewStaticKeyProvider builds a provider from a base64-encoded Fernet key.
func NewStaticKeyProvider(encoded string) (*StaticKeyProvider, error) {
	keys, err := fernet.DecodeKeys(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid content key: %w", err)
	}
	return &StaticKeyProvider{key: keys[0]}, nil
}

func (p *StaticKeyProvider) Primary() *fernet.Key {
	return p.key
}

func (p *StaticKeyProvider) Ring() []*fernet.Key {
	return []*fernet.Key{p.key}
}

// Cipher encrypts message text before it is persisted and decrypts it
// on the way back out.
type Cipher struct {
	keys KeyProvider
}

func NewCipher(keys KeyProvider) *Cipher {
	return &Cipher{keys: keys}
}

// Encrypt returns the Fernet token for plaintext. Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.keys.Primary())
	if err != nil {
		return "", fmt.Errorf("failed to encrypt content: %w", err)
	}
	return string(tok), nil
}

// Decrypt returns the plaintext for a Fernet token. Malformed or corrupt
// ciphertext yields PlaceholderUnreadable, never an error.
func (c *Cipher) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, c.keys.Ring())
	if msg == nil {
		return PlaceholderUnreadable
	}
	return string(msg)
}
