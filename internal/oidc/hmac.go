package oidc

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/docsy-app/docsy/backend/go-services/pkg/middleware"
)

// hmacToken exposes validated HS256 claims through the middleware.Token shape.
type hmacToken struct {
	claims jwt.MapClaims
}

func (t *hmacToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = map[string]interface{}(t.claims)
		return nil
	}
	return fmt.Errorf("unsupported claims type %T", v)
}

// HMACVerifier validates HS256-signed tokens against a shared secret. Used
// when no OIDC issuer is configured and the frontend signs its own tokens.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return &hmacToken{claims: claims}, nil
}
