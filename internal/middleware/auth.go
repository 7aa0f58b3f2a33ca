package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/config"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/utils"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
)

const (
	callerKey = "caller"
	userIDKey = "user_id"
)

var errMissingToken = errors.New("missing bearer token")

// TokenParser turns an access token into the caller it was issued to
type TokenParser interface {
	Parse(token string) (services.Caller, error)
}

// ParserFunc adapts a function to TokenParser
type ParserFunc func(token string) (services.Caller, error)

func (f ParserFunc) Parse(token string) (services.Caller, error) {
	return f(token)
}

// CasdoorParser verifies tokens signed by the configured casdoor application
type CasdoorParser struct {
	client    *casdoorsdk.Client
	adminRole string
}

func NewCasdoorParser(cfg config.AuthConfig) *CasdoorParser {
	return &CasdoorParser{
		client: casdoorsdk.NewClient(
			cfg.Endpoint,
			cfg.ClientID,
			cfg.ClientSecret,
			cfg.Certificate,
			cfg.OrganizationName,
			cfg.ApplicationName,
		),
		adminRole: cfg.AdminRole,
	}
}

func (p *CasdoorParser) Parse(token string) (services.Caller, error) {
	claims, err := p.client.ParseJwtToken(token)
	if err != nil {
		return services.Caller{}, err
	}

	user := claims.User
	caller := services.Caller{
		UserID:   user.Id,
		UserName: user.DisplayName,
		IsAdmin:  user.IsAdmin,
	}
	if caller.UserID == "" {
		caller.UserID = user.Owner + "/" + user.Name
	}
	if caller.UserName == "" {
		caller.UserName = user.Name
	}
	for _, role := range user.Roles {
		if role != nil && role.Name == p.adminRole {
			caller.IsAdmin = true
		}
	}
	return caller, nil
}

// Auth rejects requests without a valid access token and stores the caller on the context.
// Browsers cannot set headers on websocket upgrades, so the token query parameter is accepted too.
func Auth(parser TokenParser, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err == nil {
			var caller services.Caller
			caller, err = parser.Parse(token)
			if err == nil {
				c.Set(callerKey, caller)
				c.Set(userIDKey, caller.UserID)
				c.Next()
				return
			}
		}

		logger.Warn("Rejected unauthenticated request",
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"message": "User not authenticated",
		})
	}
}

// RequireAdmin stops non-admin callers. It must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok || !caller.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": "Access denied",
				"details": gin.H{"reason": "admin role required"},
			})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by Auth
func CallerFrom(c *gin.Context) (services.Caller, bool) {
	value, exists := c.Get(callerKey)
	if !exists {
		return services.Caller{}, false
	}
	caller, ok := value.(services.Caller)
	return caller, ok
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errMissingToken
		}
		return strings.TrimSpace(token), nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}
