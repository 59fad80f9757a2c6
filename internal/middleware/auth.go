package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	apierrors "github.com/yukikurage/checkin-bot/internal/errors"
)

// RequireSharedSecret rejects requests that do not present secret, either in
// the named header or as a Bearer token. An empty secret rejects everything.
func RequireSharedSecret(header, secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		presented := c.GetHeader(header)
		if presented == "" {
			presented = bearerToken(c.GetHeader("Authorization"))
		}

		if len(expected) == 0 || presented == "" ||
			subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			log.WithFields(log.Fields{
				"path":      c.FullPath(),
				"client_ip": c.ClientIP(),
			}).Warn("rejected request with missing or invalid secret")
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}

func bearerToken(authorization string) string {
	const prefix = "Bearer "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(prefix):])
}
