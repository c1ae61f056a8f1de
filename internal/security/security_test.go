package security

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	return key
}

func TestHashContent(t *testing.T) {
	h1 := HashContent("hola mundo")
	h2 := HashContent("hola mundo")
	h3 := HashContent("hola mundp")

	assert.Equal(t, h1, h2, "expected identical digests for identical content")
	assert.NotEqual(t, h1, h3, "expected digest to change for a single character change")
	assert.Len(t, h1, 64, "expected hex-encoded sha256 digest")
}

func TestTag(t *testing.T) {
	tag := Tag([]byte("hola"), []byte("clave-secreta"))
	assert.Len(t, tag, 64, "expected hex-encoded hmac-sha256 tag")
	assert.Equal(t, tag, Tag([]byte("hola"), []byte("clave-secreta")), "expected tag to be deterministic")
	assert.NotEqual(t, tag, Tag([]byte("hola"), []byte("otra-clave")), "expected tag to depend on the key")
	assert.NotEqual(t, tag, HashContent("hola"), "expected hmac tag to differ from the plain hash")
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	_, err := NewCipher([]byte("demasiado-corta"))
	assert.Error(t, err, "expected error for short key")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	tcases := []string{
		"",
		"hola",
		"exactly sixteen!",
		"un mensaje bastante más largo que un solo bloque de cifrado",
		"acentos y multibyte: ñandú 日本語 🚀",
	}

	for _, plaintext := range tcases {
		blob, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(blob), 2*aes.BlockSize, "expected iv plus at least one block")
		assert.Zero(t, len(blob)%aes.BlockSize, "expected blob length to be block aligned")

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got, "expected round trip to preserve plaintext %q", plaintext)
	}
}

func TestEncryptToStringRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	encoded, err := c.EncryptToString("mensaje cifrado")
	require.NoError(t, err)

	got, err := c.DecryptString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "mensaje cifrado", got)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	first, err := c.Encrypt("mismo texto")
	require.NoError(t, err)
	second, err := c.Encrypt("mismo texto")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "expected distinct blobs for the same plaintext")
	assert.NotEqual(t, first[:aes.BlockSize], second[:aes.BlockSize], "expected distinct ivs")
}

func TestDecryptRejectsMalformedBlobs(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	t.Run("short blob", func(t *testing.T) {
		_, err := c.Decrypt([]byte("corto"))
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("iv only", func(t *testing.T) {
		_, err := c.Decrypt(make([]byte, aes.BlockSize))
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("unaligned length", func(t *testing.T) {
		blob, err := c.Encrypt("hola")
		require.NoError(t, err)
		_, err = c.Decrypt(blob[:len(blob)-1])
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := c.DecryptString("esto no es base64 !!!")
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestUnpadRejectsBadPadding(t *testing.T) {
	t.Run("pad byte zero", func(t *testing.T) {
		b := bytes.Repeat([]byte{0x01}, aes.BlockSize)
		b[len(b)-1] = 0x00
		_, err := pkcs7Unpad(b, aes.BlockSize)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("pad byte above block size", func(t *testing.T) {
		b := bytes.Repeat([]byte{0x01}, aes.BlockSize)
		b[len(b)-1] = 0x11
		_, err := pkcs7Unpad(b, aes.BlockSize)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("inconsistent trailing run", func(t *testing.T) {
		b := bytes.Repeat([]byte{0x04}, aes.BlockSize)
		b[len(b)-2] = 0x03
		_, err := pkcs7Unpad(b, aes.BlockSize)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := pkcs7Unpad(nil, aes.BlockSize)
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestDecryptRejectsTamperedPadding(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	// corrupt the last ciphertext byte until padding validation fails;
	// with 255 variants at least one must be rejected
	blob, err := c.Encrypt("contenido original")
	require.NoError(t, err)

	var rejected bool
	for i := 1; i < 256; i++ {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[len(tampered)-1] ^= byte(i)

		if _, err := c.Decrypt(tampered); err != nil {
			assert.ErrorIs(t, err, ErrIntegrity)
			rejected = true
			break
		}
	}

	assert.True(t, rejected, "expected at least one tampered blob to be rejected")
}

func TestDecryptBase64EncodedKnownBlob(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	encoded, err := c.EncryptToString("historial")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	got, err := c.Decrypt(raw)
	require.NoError(t, err)
	assert.Equal(t, "historial", got)
}
