package crypto

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/core/ports/primary"
)

var ErrInvalidToken = fmt.Errorf("invalid token")

const tokenLifetime = 24 * time.Hour

// TokenServiceImpl signs HMAC bearer tokens for the management API.
type TokenServiceImpl struct {
	secret []byte
}

var _ primary.TokenService = (*TokenServiceImpl)(nil)

func NewTokenService(jwtConfig *config.JwtConfig) *TokenServiceImpl {
	return &TokenServiceImpl{
		secret: []byte(jwtConfig.Secret),
	}
}

// GenerateToken issues an HS256 token for the given subject.
func (s *TokenServiceImpl) GenerateToken(subject string) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(tokenLifetime).Unix(),
	})
	return tok.SignedString(s.secret)
}

// VerifyToken checks signature and expiry of a bearer token.
func (s *TokenServiceImpl) VerifyToken(token string) (bool, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return false, err
	}
	if !parsed.Valid {
		return false, ErrInvalidToken
	}
	return true, nil
}
