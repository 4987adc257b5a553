package middleware

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

const (
	userKey      = "user"
	nameKey      = "name"
	requestIDKey = "requestId"
)

// AuthMiddleware accepts an HS256 bearer token signed with secret. The
// subject becomes the caller's id and the name claim its display name.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if auth == "" || !strings.HasPrefix(auth, prefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			logger.Debug(ctx, "Missing or invalid Authorization header")
			c.Abort()
			return
		}
		if secret == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server misconfiguration"})
			c.Abort()
			return
		}
		tokenStr := strings.TrimSpace(auth[len(prefix):])
		claims := &models.Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			logger.Debug(ctx, "JWT parse failed", "error", err)
			c.Abort()
			return
		}
		c.Set(userKey, claims.Subject)
		c.Set(nameKey, claims.Name)
		c.Next()
	}
}

// IdentityFrom returns the caller set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	id := c.GetString(userKey)
	if id == "" {
		return models.Identity{}, false
	}
	return models.Identity{ID: id, DisplayName: c.GetString(nameKey)}, true
}

// RequestIDMiddleware ensures that each request has a stable X-Request-ID.
// If the client provides one, it is propagated; otherwise a new UUIDv4 is
// generated. The request context's logger carries it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set(requestIDKey, reqID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), reqID))
		c.Next()
	}
}

// LoggerMiddleware writes one JSON access log line per request.
func LoggerMiddleware() gin.HandlerFunc {
	hostname, _ := os.Hostname()
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		entry := struct {
			Timestamp string  `json:"ts"`
			Level     string  `json:"level"`
			Hostname  string  `json:"host"`
			RequestID string  `json:"request_id,omitempty"`
			ClientIP  string  `json:"ip"`
			Method    string  `json:"method"`
			Path      string  `json:"path"`
			Status    int     `json:"status"`
			LatencyMs float64 `json:"latencyMs"`
			BodySize  int     `json:"size"`
			Error     string  `json:"error,omitempty"`
		}{
			Timestamp: param.TimeStamp.UTC().Format(time.RFC3339Nano),
			Level:     "info",
			Hostname:  hostname,
			RequestID: param.Request.Header.Get("X-Request-ID"),
			ClientIP:  param.ClientIP,
			Method:    param.Method,
			Path:      param.Path,
			Status:    param.StatusCode,
			LatencyMs: float64(param.Latency) / float64(time.Millisecond),
			BodySize:  param.BodySize,
			Error:     param.ErrorMessage,
		}
		if v, ok := param.Keys[requestIDKey].(string); ok {
			entry.RequestID = v
		}
		b, _ := json.Marshal(entry)
		return string(b) + "\n"
	})
}
