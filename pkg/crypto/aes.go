// Package crypto 提供队列载荷的落盘加密能力
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKeySize 密钥长度错误
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes for AES-256")
	// ErrInvalidCiphertext 密文格式错误
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed 解密失败(密文被篡改或密钥不匹配)
	ErrDecryptionFailed = errors.New("decryption failed")
)

// AESCrypto 使用 AES-256-GCM 对持久化的操作载荷做静态加密。
// 密文格式: base64(nonce || ciphertext || tag)
type AESCrypto struct {
	gcm cipher.AEAD
}

// NewAESCrypto 创建加密服务,密钥必须恰好 32 字节
func NewAESCrypto(key string) (*AESCrypto, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &AESCrypto{gcm: gcm}, nil
}

// Encrypt 加密载荷并返回 base64 编码的密文。
// 空载荷原样透传,不产生密文。
func (c *AESCrypto) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal 把密文追加在 nonce 之后,解密时按 NonceSize 切分
	sealed := c.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 base64 编码的密文,返回原始载荷。
// 空密文视为空载荷。
func (c *AESCrypto) Decrypt(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize+c.gcm.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM 认证失败不区分原因,避免泄露信息
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
