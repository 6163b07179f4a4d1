package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haoran127/costix-sub001/internal/auth"
)

const (
	identityKey    = "costix.identity"
	cronHeaderName = "X-Costix-Cron"
)

// UserAuthRequired resolves the bearer token to an identity and stores it on
// the context. Missing or invalid tokens abort with 401.
func (s *Server) UserAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.authSvc.UserFromRequest(c.Request)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) *auth.Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := value.(*auth.Identity)
	return identity
}

// CronAuthRequired accepts the shared CRON_SECRET either as a bearer token or
// in the cron marker header. Nothing strips client copies of the header here,
// so its value must match the secret too.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)

		if marker := strings.TrimSpace(c.GetHeader(cronHeaderName)); marker != "" {
			if secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(marker)) == 1 {
				c.Next()
				return
			}
			AbortWithError(c, auth.ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token := ""
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
		if secret == "" || token == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(token)) != 1 {
			AbortWithError(c, auth.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
