package http

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid access token")

// AccessClaims are carried by the group hub access token.
type AccessClaims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	hub    string
}

func NewTokenIssuer(secret, hub string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, hub: hub}
}

// Issue signs a token for subject with the roles every call participant needs.
func (t *TokenIssuer) Issue(subject, name string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Name:  name,
		Roles: []string{codec.RoleJoinLeaveGroup, codec.RoleSendToGroup},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{t.hub},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) Parse(raw string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithAudience(t.hub))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTokenAuth validates the token from the access_token query
// parameter or a Bearer header. It stores the subject as "sub", the
// display name as "name" and the roles as "roles".
func AccessTokenAuth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("access_token")
		if raw == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token required"})
			return
		}
		claims, err := issuer.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("sub", claims.Subject)
		c.Set("name", claims.Name)
		c.Set("roles", claims.Roles)
		c.Next()
	}
}
