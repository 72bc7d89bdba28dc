// Package secretary provides methods for token authorization.
package secretary

import (
	"errors"
	"fmt"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelclaims"
	"github.com/golang-jwt/jwt"
)

// Secretary defines object structure and its attributes.
type Secretary struct {
	key []byte
}

// NewSecretaryService initializes a secretary service sharing its signing key with the account system.
func NewSecretaryService(c *config.SecretConfig) (*Secretary, error) {
	if c.SecretKey == "" {
		return nil, errors.New("empty secret key")
	}
	return &Secretary{
		key: []byte(c.SecretKey),
	}, nil
}

// ValidateToken checks the signature and expiry of an access token and returns its claims.
func (s *Secretary) ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error) {
	token, err := jwt.ParseWithClaims(accessToken, &modelclaims.MyCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*modelclaims.MyCustomClaims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}
	return nil, errors.New("invalid access token")
}
