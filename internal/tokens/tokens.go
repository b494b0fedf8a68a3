package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/docsy-app/docsy/backend/go-services/internal/config"
	"github.com/docsy-app/docsy/backend/go-services/internal/models"
)

// GenerateAccessToken creates a signed JWT access token for the user. Used by
// the realtime gateway to answer refresh-token requests so a long-lived
// editing session outlives the access token it connected with.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.Sub,
		"name":  u.Name,
		"email": u.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}
