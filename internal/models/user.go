package models

import (
	"strings"
	"time"
)

// User represents an authenticated principal (mapped from identity-provider claims).
// Identity issuance and webhook sync live outside this service; only the
// verified claim fields are consumed here.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Sub       string    `bson:"sub" json:"sub"` // OIDC subject
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// PrincipalFromClaims maps verified token claims onto a User. Returns nil
// when the claims carry no subject. Email is lower-cased so that invitation
// matching is case-insensitive everywhere.
func PrincipalFromClaims(claims map[string]interface{}) *User {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return &User{
		Sub:   sub,
		Email: strings.ToLower(strings.TrimSpace(email)),
		Name:  name,
	}
}
