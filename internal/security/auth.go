package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
)

const (
	adminRole       = "admin"
	adminSubjectKey = "admin_subject"
	tokenIssuer     = "chain-sentinel"
)

// AdminClaims are the claims carried by operator tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth issues and validates HS256 operator tokens.
type AdminAuth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAdminAuth returns an authenticator. An empty secret is rejected.
func NewAdminAuth(secret string, ttl time.Duration) (*AdminAuth, error) {
	if secret == "" {
		return nil, fmt.Errorf("admin auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AdminAuth{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueToken signs a token for subject.
func (a *AdminAuth) IssueToken(subject string) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and checks signature, expiry, issuer and role.
func (a *AdminAuth) ValidateToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != adminRole {
		return nil, fmt.Errorf("token lacks admin role")
	}
	return claims, nil
}

// Middleware requires a valid bearer token and stores its subject on the context.
func (a *AdminAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			appErr := apperrors.NewUnauthorizedError("missing bearer token", nil)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		claims, err := a.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			appErr := apperrors.NewUnauthorizedError("invalid admin token", err)
			apperrors.LogError(c, appErr)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}

		c.Set(adminSubjectKey, claims.Subject)
		c.Next()
	}
}

// AdminSubject returns the authenticated operator, if any.
func AdminSubject(c *gin.Context) string {
	return c.GetString(adminSubjectKey)
}
