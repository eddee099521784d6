// Package seal encrypts exported files with a passphrase so reports
// and event dumps can leave the device without exposing their
// contents. The passphrase is stretched with PBKDF2-HMAC-SHA512 and
// the payload sealed with XChaCha20-Poly1305; any alteration of the
// sealed file fails authentication on open.
package seal

import (
	"crypto/rand"
	"crypto/sha512"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// SealedExtension is appended to sealed file names.
const SealedExtension = ".sealed"

const (
	magic            = "DSEAL1"
	saltLength       = 32
	pbkdf2Iterations = 256000
	keyLength        = 32
)

// Sealed file layout: magic || salt || nonce || ciphertext.
const headerLength = len(magic) + saltLength + chacha20poly1305.NonceSizeX

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha512.New)
}

// SealBytes encrypts plaintext under the passphrase. Every call uses a
// fresh salt and nonce, so sealing the same bytes twice produces
// different output.
func SealBytes(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errsys.E(errsys.KindMissingField).WithDetail("passphrase is empty")
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errsys.Classify(err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errsys.Classify(err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, errsys.Classify(err)
	}

	out := make([]byte, 0, headerLength+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// OpenBytes reverses SealBytes. Authentication failure means the
// passphrase is wrong or the sealed bytes were altered; the two cases
// are indistinguishable.
func OpenBytes(sealed []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errsys.E(errsys.KindMissingField).WithDetail("passphrase is empty")
	}
	if len(sealed) < headerLength || string(sealed[:len(magic)]) != magic {
		return nil, errsys.E(errsys.KindInvalidFormat).WithDetail("not a sealed file")
	}

	salt := sealed[len(magic) : len(magic)+saltLength]
	nonce := sealed[len(magic)+saltLength : headerLength]

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, errsys.Classify(err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed[headerLength:], nil)
	if err != nil {
		return nil, errsys.E(errsys.KindAccessDenied).
			WithDetail("passphrase does not match or the file was altered")
	}
	return plaintext, nil
}

// Seal encrypts the file at path and writes a sealed sibling,
// returning its location. The plaintext file is left in place; the
// caller decides whether to remove it.
func Seal(path, passphrase string) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", errsys.Classify(err)
	}
	sealed, err := SealBytes(plaintext, passphrase)
	if err != nil {
		return "", err
	}
	out := path + SealedExtension
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return "", errsys.Classify(err)
	}
	return out, nil
}

// Open decrypts a sealed file and writes the plaintext sibling,
// returning its location. The ".sealed" suffix is stripped when
// present.
func Open(path, passphrase string) (string, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return "", errsys.Classify(err)
	}
	plaintext, err := OpenBytes(sealed, passphrase)
	if err != nil {
		return "", err
	}
	out := strings.TrimSuffix(path, SealedExtension)
	if out == path {
		out = path + ".opened"
	}
	if err := os.WriteFile(out, plaintext, 0o600); err != nil {
		return "", errsys.Classify(err)
	}
	return out, nil
}
