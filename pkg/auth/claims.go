package auth

import (
	"fmt"

	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ParseClaims decodes the claims of token without verifying its signature or validating its
// expiration. Only the backend can verify a token.
func ParseClaims(token string) (model.Claims, error) {
	t, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return model.Claims{}, fmt.Errorf("failed to parse token: %v", err)
	}

	claims := model.Claims{
		ExpiresAt: t.Expiration(),
		Username:  stringClaim(t, "username"),
		Role:      stringClaim(t, "role"),
	}

	if v, ok := t.Get("user_id"); ok {
		// JSON numbers are decoded as float64
		if id, ok := v.(float64); ok && id >= 0 {
			claims.UserID = uint(id)
		}
	}

	return claims, nil
}

func stringClaim(t jwt.Token, name string) string {
	v, ok := t.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
