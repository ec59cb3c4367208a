package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuerPrefix  = "https://securetoken.google.com/"
	maxUIDLength  = 128
	clockSkew     = 5 * time.Minute
	signingMethod = "RS256"
)

// Identity はIDトークンの検証によって確定した利用者の身元。
type Identity struct {
	UID   string
	Email string
}

// TokenVerifier はIDプロバイダーが発行したIDトークンを検証するインターフェース。
type TokenVerifier interface {
	// Verify はIDトークンを検証し、身元を返す。
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// idTokenClaims はIDトークンのクレーム。
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	AuthTime int64  `json:"auth_time"`
}

// FirebaseVerifier はFirebase AuthenticationのIDトークンを検証する。
// 署名はKeySourceの公開鍵でRS256として検証し、aud/issはプロジェクトIDに一致する必要がある。
type FirebaseVerifier struct {
	projectID string
	keys      KeySource
	now       func() time.Time
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(projectID string, keys KeySource) *FirebaseVerifier {
	return &FirebaseVerifier{
		projectID: projectID,
		keys:      keys,
		now:       time.Now,
	}
}

// ProjectID は検証対象のプロジェクトIDを返す。
func (v *FirebaseVerifier) ProjectID() string {
	return v.projectID
}

// Verify はIDトークンを検証し、身元を返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, errors.New("empty id token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)

	claims := &idTokenClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("id token has no kid header")
		}
		return v.keys.PublicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	if claims.Subject == "" || len(claims.Subject) > maxUIDLength {
		return nil, fmt.Errorf("id token has invalid sub claim")
	}
	if claims.AuthTime == 0 || time.Unix(claims.AuthTime, 0).After(v.now().Add(clockSkew)) {
		return nil, fmt.Errorf("id token has invalid auth_time claim")
	}
	// スタッフの自動登録はメールアドレスを必須とする
	if claims.Email == "" {
		return nil, errors.New("id token has no email claim")
	}

	return &Identity{
		UID:   claims.Subject,
		Email: claims.Email,
	}, nil
}

// compile-time interface check
var _ TokenVerifier = (*FirebaseVerifier)(nil)
