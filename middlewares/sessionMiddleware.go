package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
)

// SessionMiddleware resolves the "token" header into the acting user and
// injects the identity into the request context. Requests without a token
// pass through untouched; route guards decide whether anonymity is allowed.
func SessionMiddleware(users models.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		email, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		user, err := models.GetUserCached(c.Request.Context(), users, email)
		if err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "sessionMiddleware.go", "SessionMiddleware", "GetUserCached", email, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user is deactivated"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserEmailInContext(ctx, user.Email)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		ctx = utils.SetUserRoleInContext(ctx, string(user.Role))
		ctx = utils.SetPlatformInContext(ctx, string(user.Platform))
		ctx = utils.SetIsAdminInContext(ctx, user.Role == models.RoleAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
