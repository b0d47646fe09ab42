package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	MaxCalldataLen int           `yaml:"max_calldata_len"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EnableHSTS     bool          `yaml:"enable_hsts"`
	CSPReportURI   string        `yaml:"csp_report_uri"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodyBytes:   256 << 10,
		MaxCalldataLen: 128 << 10,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout: 30 * time.Second,
	}
}

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hexPattern     = regexp.MustCompile(`^0x([0-9a-fA-F]{2})*$`)
)

// SecurityMiddleware bundles request hygiene middleware for the firewall API.
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// Config returns the active configuration.
func (sm *SecurityMiddleware) Config() SecurityConfig {
	return sm.config
}

// ValidateAddress checks that input is a 20-byte hex address with 0x prefix.
func (sm *SecurityMiddleware) ValidateAddress(input string) error {
	if err := validateText(input, 42); err != nil {
		return err
	}
	if !addressPattern.MatchString(input) {
		return fmt.Errorf("invalid address format")
	}
	return nil
}

// ValidateHexData checks calldata or raw transaction hex. Empty is allowed.
func (sm *SecurityMiddleware) ValidateHexData(input string) error {
	if input == "" {
		return nil
	}
	if err := validateText(input, sm.config.MaxCalldataLen); err != nil {
		return err
	}
	if !hexPattern.MatchString(input) {
		return fmt.Errorf("invalid hex data")
	}
	return nil
}

// ValidateLabel checks short free-text fields such as a claimed function name.
func (sm *SecurityMiddleware) ValidateLabel(input string) error {
	if err := validateText(input, 256); err != nil {
		return err
	}
	if strings.ContainsAny(input, "<>") {
		return fmt.Errorf("input contains suspicious patterns")
	}
	return nil
}

func validateText(input string, max int) error {
	if max > 0 && len(input) > max {
		return fmt.Errorf("input exceeds maximum length of %d characters", max)
	}
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}
	return nil
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type",
		})
		return
	}

	c.Next()
}

// LimitBody caps the request body size.
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if sm.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORS returns the cross-origin policy for wallet front-ends.
func (sm *SecurityMiddleware) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
