package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type RoomAccess string

const (
	RoomAccessRead RoomAccess = "read"
	RoomAccessFull RoomAccess = "full"
)

// RoomClaims authorize a client against one realtime room of the sync layer.
type RoomClaims struct {
	Room   string     `json:"room"`
	Access RoomAccess `json:"access"`
	Name   string     `json:"name,omitempty"`
	Avatar string     `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

func IssueRoomToken(secret []byte, identity Identity, room string, access RoomAccess, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := RoomClaims{
		Room:   room,
		Access: access,
		Name:   identity.Name,
		Avatar: identity.PictureURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.TokenIdentifier,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign room token: %w", err)
	}
	return signed, expiresAt, nil
}

func ParseRoomToken(secret []byte, token string) (RoomClaims, error) {
	var claims RoomClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RoomClaims{}, ErrExpiredToken
		}
		return RoomClaims{}, ErrInvalidToken
	}
	if claims.Room == "" {
		return RoomClaims{}, ErrInvalidToken
	}
	return claims, nil
}
