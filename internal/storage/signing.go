package storage

import (
	"errors"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fileforge/internal/config"
	"fileforge/internal/faults"
)

// URLSigner issues and verifies time-limited download URLs. The object key
// travels inside an HMAC-signed token, so handing out a URL grants access to
// exactly one object until the token expires.
type URLSigner struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

type downloadClaims struct {
	jwt.RegisteredClaims
	Key string `json:"key"`
}

// NewURLSigner builds a signer from the storage configuration.
func NewURLSigner(cfg *config.Config) (*URLSigner, error) {
	if cfg.Storage.SigningSecret == "" {
		return nil, errors.New("storage signing secret is required")
	}
	return &URLSigner{
		secret:  []byte(cfg.Storage.SigningSecret),
		ttl:     time.Duration(cfg.Storage.DownloadTTLSeconds) * time.Second,
		baseURL: cfg.Storage.PublicBaseURL,
	}, nil
}

// Sign returns a download URL for the object key, valid until the configured
// TTL elapses.
func (s *URLSigner) Sign(key string) (string, error) {
	now := time.Now()
	claims := &downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "fileforge",
		},
		Key: key,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/api/files?token=" + url.QueryEscape(signed), nil
}

// Verify checks a download token and returns the object key it grants.
func (s *URLSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &downloadClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", faults.Wrap(faults.ErrValidation, "storage", "verify", "invalid download token", err)
	}

	claims, ok := token.Claims.(*downloadClaims)
	if !ok || !token.Valid || claims.Key == "" {
		return "", faults.Wrap(faults.ErrValidation, "storage", "verify", "invalid download token", nil)
	}
	return claims.Key, nil
}
