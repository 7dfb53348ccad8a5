package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskboard/internal/model"
)

// Claims はセッショントークンに含めるクレーム。
// subjectにユーザーIDを格納する。
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のセッショントークンを発行・検証する。
// middleware.SessionVerifierを満たす。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager はTokenManagerを生成する。
// ttlはトークンの有効期間（Cookieの有効期間と揃える）。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue はユーザーのセッショントークンを発行し、トークンと有効期限を返す。
func (m *TokenManager) Issue(user model.SessionUser) (string, time.Time, error) {
	if user.ID == "" {
		return "", time.Time{}, errors.New("user ID is required")
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify はトークンを検証し、ユーザー識別情報を返す。
// 形式不正・署名不一致・期限切れはいずれもエラーではなく (nil, false) として扱う。
func (m *TokenManager) Verify(token string) (*model.SessionUser, bool) {
	if token == "" {
		return nil, false
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Subject == "" {
		return nil, false
	}

	return &model.SessionUser{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
	}, true
}
