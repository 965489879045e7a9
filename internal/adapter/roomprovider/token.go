package roomprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stagecast-live/stagecast/internal/domain"
)

// videoGrant is the capability claim embedded in access tokens. The provider
// enforces it: publish rights only for broadcaster-scoped tokens, subscribe
// for everyone.
type videoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

// MintToken signs a token scoped to exactly one room, one identity, and one
// role. The TTL is fixed by the caller, never by the requester.
func (c *Client) MintToken(_ context.Context, room string, identity uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	now := c.clock.Now()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			Subject:   identity.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   role == domain.RoleBroadcaster,
			CanSubscribe: true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// mintAdminToken signs a short-lived token for the admin API.
func (c *Client) mintAdminToken() (string, error) {
	now := c.clock.Now()

	claims := jwt.RegisteredClaims{
		Issuer:    c.apiKey,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}
