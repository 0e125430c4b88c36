package jwttoken

import (
	"ingressgw/pkg/requestcontext"
)

// ToIdentity converts verified claims into the request-scoped identity.
func ToIdentity(claims *Claims) requestcontext.Identity {
	roles := make([]string, len(claims.RealmAccess.Roles))
	copy(roles, claims.RealmAccess.Roles)
	return requestcontext.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Roles:   roles,
	}
}

// JWTServiceAdapter satisfies the auth middleware's TokenVerifier.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) Verify(tokenString string) (requestcontext.Identity, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.Identity{}, err
	}
	return ToIdentity(claims), nil
}
