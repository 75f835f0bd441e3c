package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"itsm/internal/authz"
	pkgerrors "itsm/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTypeAccess = "access"

// Config holds token signing settings.
type Config struct {
	Secret    string        `yaml:"secret" env:"ITSM_JWT_SECRET"`
	Issuer    string        `yaml:"issuer" env:"ITSM_JWT_ISSUER" env-default:"itsm"`
	AccessTTL time.Duration `yaml:"accessTTL" env-default:"8h"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenService issues and verifies HS256 access tokens that carry the caller's role.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 8 * time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		now:    time.Now,
	}, nil
}

type tokenClaims struct {
	Role       string `json:"role"`
	EmployeeID int64  `json:"emp,omitempty"`
	Username   string `json:"name,omitempty"`
	TokenType  string `json:"typ"`
	jwt.RegisteredClaims
}

// Issue signs an access token for ac.
func (s *TokenService) Issue(ac authz.Context) (Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		Role:       ac.Role,
		EmployeeID: ac.EmployeeID,
		Username:   ac.Username,
		TokenType:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(ac.UserID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, pkgerrors.Wrap(fmt.Errorf("sign token failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// Parse verifies raw and returns the identity it carries.
func (s *TokenService) Parse(raw string) (*authz.Context, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess || claims.Role == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return &authz.Context{
		UserID:     userID,
		EmployeeID: claims.EmployeeID,
		Username:   claims.Username,
		Role:       claims.Role,
	}, nil
}
