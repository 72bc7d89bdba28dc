// Package modelclaims provides types for token authorization.

package modelclaims

import "github.com/golang-jwt/jwt"

type MyCustomClaims struct {
	UserID int64  `json:"userID"`
	Login  string `json:"login"`
	jwt.StandardClaims
}
