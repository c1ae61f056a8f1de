package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrIntegrity is returned whenever a ciphertext blob cannot be
// decrypted to a valid plaintext: truncated input, bad framing or
// PKCS7 padding that fails validation.
var ErrIntegrity = errors.New("integrity check failed")

// HashContent returns the hex-encoded SHA-256 digest of text. It is
// the durable integrity record stored alongside every message.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Tag computes a hex-encoded HMAC-SHA256 over b with the server's
// shared secret. It is a transport-time authenticity tag and does not
// replace the per-message content hash.
func Tag(b, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil))
}

// Cipher encrypts and decrypts message content with AES-256-CBC.
// Every encryption uses a fresh random IV which prefixes the output.
type Cipher struct {
	block cipher.Block
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	return &Cipher{block: block}, nil
}

// Encrypt pads text to the block size with PKCS7, encrypts it in CBC
// mode under a fresh random IV and returns IV || ciphertext.
func (c *Cipher) Encrypt(text string) ([]byte, error) {
	padded := pkcs7Pad([]byte(text), aes.BlockSize)

	blob := make([]byte, aes.BlockSize+len(padded))
	iv := blob[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(blob[aes.BlockSize:], padded)
	return blob, nil
}

// Decrypt splits the leading IV off blob, decrypts the remainder and
// strips the PKCS7 padding. Malformed input of any kind yields
// ErrIntegrity, never a silently truncated plaintext.
func (c *Cipher) Decrypt(blob []byte) (string, error) {
	if len(blob) < 2*aes.BlockSize || len(blob)%aes.BlockSize != 0 {
		return "", ErrIntegrity
	}

	iv := blob[:aes.BlockSize]
	ciphertext := blob[aes.BlockSize:]

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(padded, ciphertext)

	plain, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// EncryptToString encrypts text and base64-encodes the blob for
// transport or storage in a text column.
func (c *Cipher) EncryptToString(text string) (string, error) {
	blob, err := c.Encrypt(text)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString reverses EncryptToString. A blob that is not valid
// base64 is treated the same as any other corrupted input.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrIntegrity
	}

	return c.Decrypt(blob)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+padLen)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrIntegrity
	}

	padLen := int(b[len(b)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, ErrIntegrity
	}

	// the whole trailing run must carry the pad value
	for _, v := range b[len(b)-padLen:] {
		if int(v) != padLen {
			return nil, ErrIntegrity
		}
	}

	return b[:len(b)-padLen], nil
}
