package status

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const claimsKey = "sqlupgrade.claims"

// VerifyConfig configures JWT verification middleware.
// Secret is the HMAC key and is required.
type VerifyConfig struct {
	Secret          []byte
	RequireJTI      bool
	AllowedIssuer   string
	AllowedAudience string
	ClockSkew       time.Duration
}

// GetClaims returns the verified claims stored by JWTMiddleware.
func GetClaims(c *gin.Context) jwt.MapClaims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(jwt.MapClaims); ok {
			return claims
		}
	}
	return nil
}

// JWTMiddleware enforces a Bearer token signed with HS256/384/512.
func JWTMiddleware(cfg VerifyConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.AllowedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.AllowedIssuer))
	}
	if cfg.AllowedAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.AllowedAudience))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		if len(cfg.Secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt secret not configured"})
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		tokStr := strings.TrimSpace(auth[len("Bearer "):])
		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(tokStr, claims, func(*jwt.Token) (interface{}, error) {
			return cfg.Secret, nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if cfg.RequireJTI {
			if _, ok := claims["jti"]; !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing jti"})
				return
			}
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// NewToken signs an HS256 token for the status API.
func NewToken(secret []byte, issuer, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
