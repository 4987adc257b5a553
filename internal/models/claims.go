package models

import "github.com/golang-jwt/jwt/v5"

// Claims are the JWT claims accepted by the server. Subject becomes CreatedBy,
// Name becomes DisplayName.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the author attached to new todos and announced to the relay.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Name returns the display name, falling back to the id.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.ID
}
