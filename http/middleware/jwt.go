package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tnqbao/gau-vm-orchestrator/config"
	"github.com/tnqbao/gau-vm-orchestrator/utils"
)

// AuthMiddleware validates the caller's JWT and injects the principal into
// the request context. The token is read from the access_token cookie or the
// Authorization header; websocket console clients cannot set headers, so a
// query parameter fallback is accepted as well.
func AuthMiddleware(cfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractToken(c)
		if tokenString == "" {
			tokenString = c.Query("access_token")
		}
		if tokenString == "" {
			utils.JSON401(c, "Unauthorized: missing token")
			c.Abort()
			return
		}

		token, err := utils.ParseToken(tokenString, cfg)
		if err != nil || !token.Valid {
			utils.JSON401(c, "Unauthorized: invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			utils.JSON401(c, "Unauthorized: invalid claims")
			c.Abort()
			return
		}

		if err := utils.InjectClaimsToContext(c, claims); err != nil {
			utils.JSON401(c, "Unauthorized: "+err.Error())
			c.Abort()
			return
		}

		c.Next()
	}
}
