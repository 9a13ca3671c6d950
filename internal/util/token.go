package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewInviteToken 生成邀请 token：32 字节随机数，base64url 编码（43 字符）。
// 256 bits of entropy, independent of email and time, so tokens cannot
// be enumerated.
func NewInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RandomString 生成指定长度的随机字符串（URL 安全，用于 state 参数等）。
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}
