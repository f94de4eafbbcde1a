package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// EmailKey is the gin context key holding the authenticated email
const EmailKey = "auth_email"

// OptionalSession reads a Bearer token when one is sent and stores the
// account email in the context. Requests without a valid token pass through
// anonymously.
func (s *Service) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			if email, err := s.ValidateSessionToken(token); err == nil {
				c.Set(EmailKey, email)
			}
		}
		c.Next()
	}
}

// SessionEmail returns the email stored by OptionalSession
func SessionEmail(c *gin.Context) (string, bool) {
	return c.GetString(EmailKey), c.GetString(EmailKey) != ""
}
