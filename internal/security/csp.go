package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

	// swagger-ui ships inline bootstrap scripts and styles
	docsPolicy = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'"
)

// CSPMiddleware sets a locked-down policy for JSON endpoints and a looser one
// under docsPrefix. A non-empty reportURI also emits a report-only header.
func CSPMiddleware(docsPrefix, reportURI string) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy := apiPolicy
		if docsPrefix != "" && strings.HasPrefix(c.Request.URL.Path, docsPrefix) {
			policy = docsPolicy
		}

		c.Header("Content-Security-Policy", policy)
		if reportURI != "" {
			c.Header("Content-Security-Policy-Report-Only", policy+"; report-uri "+reportURI)
		}

		c.Next()
	}
}
