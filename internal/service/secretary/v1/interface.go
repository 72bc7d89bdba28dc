// Package secretary provides methods for token authorization.
package secretary

import "github.com/danilovkiri/dk-go-fastcore/internal/models/modelclaims"

// Secretary defines a set of methods for types implementing Secretary.
type Secretary interface {
	ValidateToken(accessToken string) (*modelclaims.MyCustomClaims, error)
}
