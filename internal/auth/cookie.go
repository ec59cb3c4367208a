package auth

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
)

// sessionCookieName は署名に含めるCookie名。別名のCookieへの値の流用を防ぐ。
const sessionCookieName = "session_id"

// ErrInvalidCookie は署名付きCookie値の形式・署名・有効期限のいずれかが不正であることを示す。
var ErrInvalidCookie = errors.New("invalid session cookie")

// CookieSigner はセッションIDをHMAC認証付きのCookie値に変換・検証する。
// 値には発行時刻が含まれ、maxAgeを過ぎたものは検証に失敗する。
type CookieSigner struct {
	codec *securecookie.SecureCookie
}

// NewCookieSigner はCookieSignerを生成する。maxAgeは秒単位。
func NewCookieSigner(secret string, maxAge int) *CookieSigner {
	codec := securecookie.New([]byte(secret), nil).
		MaxAge(maxAge).
		SetSerializer(securecookie.JSONEncoder{})
	return &CookieSigner{codec: codec}
}

// Sign はセッションIDに署名したCookie値を返す。
func (c *CookieSigner) Sign(sessionID string) (string, error) {
	value, err := c.codec.Encode(sessionCookieName, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return value, nil
}

// Verify はCookie値の署名と発行時刻を検証し、セッションIDを返す。
func (c *CookieSigner) Verify(value string) (string, error) {
	var sessionID string
	if err := c.codec.Decode(sessionCookieName, value, &sessionID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if sessionID == "" {
		return "", ErrInvalidCookie
	}
	return sessionID, nil
}
