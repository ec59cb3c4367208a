package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testProjectID = "staff-portal-test"

// staticKeySource はテスト用の固定鍵セット。
type staticKeySource map[string]*rsa.PublicKey

func (s staticKeySource) PublicKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok := s[kid]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return key, nil
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":       issuerPrefix + testProjectID,
		"aud":       testProjectID,
		"sub":       "uid-1",
		"email":     "staff@example.com",
		"iat":       now.Add(-time.Minute).Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"auth_time": now.Add(-time.Minute).Unix(),
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestFirebaseVerifier_ValidToken(t *testing.T) {
	key := generateKey(t)
	v := NewFirebaseVerifier(testProjectID, staticKeySource{"k1": &key.PublicKey})

	identity, err := v.Verify(context.Background(), signToken(t, key, "k1", validClaims(time.Now())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UID != "uid-1" {
		t.Errorf("UID = %q, want uid-1", identity.UID)
	}
	if identity.Email != "staff@example.com" {
		t.Errorf("Email = %q, want staff@example.com", identity.Email)
	}
}

func TestFirebaseVerifier_RejectsInvalidTokens(t *testing.T) {
	key := generateKey(t)
	otherKey := generateKey(t)
	now := time.Now()

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not-a-jwt" }},
		{"wrong audience", func() string {
			c := validClaims(now)
			c["aud"] = "another-project"
			return signToken(t, key, "k1", c)
		}},
		{"wrong issuer", func() string {
			c := validClaims(now)
			c["iss"] = "https://evil.example.com/" + testProjectID
			return signToken(t, key, "k1", c)
		}},
		{"expired", func() string {
			c := validClaims(now)
			c["iat"] = now.Add(-3 * time.Hour).Unix()
			c["exp"] = now.Add(-2 * time.Hour).Unix()
			return signToken(t, key, "k1", c)
		}},
		{"missing exp", func() string {
			c := validClaims(now)
			delete(c, "exp")
			return signToken(t, key, "k1", c)
		}},
		{"empty subject", func() string {
			c := validClaims(now)
			c["sub"] = ""
			return signToken(t, key, "k1", c)
		}},
		{"subject too long", func() string {
			c := validClaims(now)
			c["sub"] = strings.Repeat("u", maxUIDLength+1)
			return signToken(t, key, "k1", c)
		}},
		{"missing auth_time", func() string {
			c := validClaims(now)
			delete(c, "auth_time")
			return signToken(t, key, "k1", c)
		}},
		{"auth_time in future", func() string {
			c := validClaims(now)
			c["auth_time"] = now.Add(time.Hour).Unix()
			return signToken(t, key, "k1", c)
		}},
		{"missing email", func() string {
			c := validClaims(now)
			delete(c, "email")
			return signToken(t, key, "k1", c)
		}},
		{"missing kid", func() string {
			return signToken(t, key, "", validClaims(now))
		}},
		{"unknown kid", func() string {
			return signToken(t, key, "k9", validClaims(now))
		}},
		{"signed by other key", func() string {
			return signToken(t, otherKey, "k1", validClaims(now))
		}},
		{"HS256", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(now))
			token.Header["kid"] = "k1"
			s, _ := token.SignedString([]byte("shared-secret"))
			return s
		}},
	}

	v := NewFirebaseVerifier(testProjectID, staticKeySource{"k1": &key.PublicKey})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(context.Background(), tt.token())
			if err == nil {
				t.Errorf("expected error, got identity %+v", identity)
			}
		})
	}
}

func TestFirebaseVerifier_UnknownKid_WrapsErrUnknownKeyID(t *testing.T) {
	key := generateKey(t)
	v := NewFirebaseVerifier(testProjectID, staticKeySource{})

	_, err := v.Verify(context.Background(), signToken(t, key, "k1", validClaims(time.Now())))
	if !errors.Is(err, ErrUnknownKeyID) {
		t.Errorf("err = %v, want ErrUnknownKeyID", err)
	}
}

// 時計のずれの許容範囲内であれば有効期限直後でも受け入れる
func TestFirebaseVerifier_AllowsClockSkew(t *testing.T) {
	key := generateKey(t)
	issued := time.Now().Add(-2 * time.Hour)
	c := validClaims(issued)
	token := signToken(t, key, "k1", c)

	v := NewFirebaseVerifier(testProjectID, staticKeySource{"k1": &key.PublicKey})
	v.now = func() time.Time { return issued.Add(time.Hour + 2*time.Minute) }

	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Errorf("token within skew should verify: %v", err)
	}
}
