package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

// TestNewAESCrypto_KeySize 密钥长度校验
func TestNewAESCrypto_KeySize(t *testing.T) {
	_, err := NewAESCrypto("short")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewAESCrypto(strings.Repeat("k", 33))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

// TestAESCrypto_RoundTrip 加密后解密还原原始载荷
func TestAESCrypto_RoundTrip(t *testing.T) {
	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)

	payload := []byte(`{"action":"sync","items":[1,2,3]}`)
	encoded, err := c.Encrypt(payload)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "sync")

	decrypted, err := c.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decrypted)
}

// TestAESCrypto_EmptyPayload 空载荷透传
func TestAESCrypto_EmptyPayload(t *testing.T) {
	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)

	encoded, err := c.Encrypt(nil)
	require.NoError(t, err)
	assert.Empty(t, encoded)

	decrypted, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Nil(t, decrypted)
}

// TestAESCrypto_NonceUniqueness 相同明文每次加密产生不同密文
func TestAESCrypto_NonceUniqueness(t *testing.T) {
	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)

	payload := []byte("same payload")
	first, err := c.Encrypt(payload)
	require.NoError(t, err)
	second, err := c.Encrypt(payload)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

// TestAESCrypto_TamperedCiphertext 篡改密文导致解密失败
func TestAESCrypto_TamperedCiphertext(t *testing.T) {
	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)

	encoded, err := c.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	tampered := []byte(encoded)
	tampered[len(tampered)-2] ^= 0x01
	_, err = c.Decrypt(string(tampered))
	assert.Error(t, err)
}

// TestAESCrypto_InvalidFormat 非法 base64 与过短密文
func TestAESCrypto_InvalidFormat(t *testing.T) {
	c, err := NewAESCrypto(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

// TestAESCrypto_WrongKey 使用不同密钥解密失败
func TestAESCrypto_WrongKey(t *testing.T) {
	c1, err := NewAESCrypto(testKey)
	require.NoError(t, err)
	c2, err := NewAESCrypto(strings.Repeat("z", 32))
	require.NoError(t, err)

	encoded, err := c1.Encrypt([]byte("cross-key"))
	require.NoError(t, err)

	_, err = c2.Decrypt(encoded)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
