// Package http is the control-plane listener: health probes and the
// webhook endpoint that originates streaming sessions.
package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/auth"
	"github.com/meshwire/rtms/internal/config"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the control-plane router. ready reports whether
// both WebSocket planes are accepting connections.
func SetupRouter(cfg *config.Config, store *auth.Store, ready func() bool) *gin.Engine {
	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RTMSSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "RTMS server is running")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws-health", func(c *gin.Context) {
		if ready() {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "WebSocket servers not ready"})
	})
	r.POST("/webhook", func(c *gin.Context) {
		handleWebhook(c, store)
	})

	log.Info().Str("module", "adapters.http").Msg("control plane router setup")
	return r
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		PlainToken string `json:"plainToken"`
	} `json:"payload"`
}

// handleWebhook verifies the inbound signature and answers URL
// validation challenges. Session-originating events are acknowledged
// and logged; their dispatch lives with the event source, not here.
func handleWebhook(c *gin.Context, store *auth.Store) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ts := c.GetHeader("x-zm-request-timestamp")
	signature := c.GetHeader("x-zm-signature")
	expected := "v0=" + hmacHex(store.WebhookToken(), fmt.Sprintf("v0:%s:%s", ts, body))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		log.Warn().Str("module", "adapters.http").Msg("webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	c.Header("x-zm-trackingid", uuid.NewString())

	if ev.Event == "endpoint.url_validation" {
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     ev.Payload.PlainToken,
			"encryptedToken": hmacHex(store.WebhookToken(), ev.Payload.PlainToken),
		})
		return
	}

	log.Info().Str("module", "adapters.http").Str("event", ev.Event).Msg("webhook event received")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func hmacHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
