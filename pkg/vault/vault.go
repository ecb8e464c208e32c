// Package vault holds the key derivation, sealing and file locking shared by
// the permission fortress and the API key store.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 100000
	// SaltSize is the length of a persisted salt.
	SaltSize = 16
	// KeySize is the length of a derived key.
	KeySize = 32

	nonceSize = 24
)

// ErrDecrypt is returned when sealed data fails authentication.
var ErrDecrypt = errors.New("vault: message authentication failed")

// DeriveKey stretches password with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)
}

// LoadOrCreateSalt reads the salt at path, or writes a fresh random one
// with mode 0600 when the file does not exist.
func LoadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < SaltSize {
			return nil, fmt.Errorf("salt %s is truncated (%d bytes)", path, len(salt))
		}
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading salt: %w", err)
	}

	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	if err := WriteFileAtomic(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// Cipher seals and opens messages with NaCl secretbox. The random nonce is
// prepended to each sealed message.
type Cipher struct {
	key [KeySize]byte
}

// NewCipher creates a cipher from a derived key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	c := &Cipher{}
	copy(c.key[:], key)
	return c, nil
}

// Seal encrypts and authenticates plaintext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// Open authenticates and decrypts a message produced by Seal.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// WriteFileAtomic writes data to a temporary file in the same directory,
// sets perm and renames it over path.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
