package jwttoken

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	dErrors "ingressgw/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
)

// RealmAccess mirrors the nested realm_access claim issued by the identity provider.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Claims represents the access token claims the gateway cares about.
type Claims struct {
	Email       string      `json:"email,omitempty"`
	RealmAccess RealmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// JWTService verifies RS256 access tokens against a single configured public key.
// It is pure: no auditing, no header mutation.
type JWTService struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewJWTService builds a verifier for key. Registered claims (exp, nbf, iat) are not
// validated; only the signature and algorithm are checked.
func NewJWTService(publicKey *rsa.PublicKey) *JWTService {
	return &JWTService{
		publicKey: publicKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// ValidateToken decodes tokenString and checks its signature.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	parsed, err := s.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.publicKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token signature")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
		}
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ParsePublicKey accepts a PEM block or bare base64 DER (X.509 SubjectPublicKeyInfo).
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "public key is empty")
	}

	if strings.HasPrefix(raw, "-----BEGIN") {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return nil, dErrors.New(dErrors.CodeInvalidConfig, "public key PEM could not be decoded")
		}
		return parseDER(block.Bytes)
	}

	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "public key is neither PEM nor base64 DER")
	}
	return parseDER(der)
}

func parseDER(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		// Some tooling emits PKCS#1 instead of SubjectPublicKeyInfo.
		if pkcs1, pkcs1Err := x509.ParsePKCS1PublicKey(der); pkcs1Err == nil {
			return pkcs1, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "parse public key")
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, fmt.Sprintf("public key is %T, want RSA", pub))
	}
	return rsaKey, nil
}
