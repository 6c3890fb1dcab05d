package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/raid-guild/hive-x402-facilitator-go/auth"
	"github.com/raid-guild/hive-x402-facilitator-go/config"
	"github.com/raid-guild/hive-x402-facilitator-go/core"
	"github.com/raid-guild/hive-x402-facilitator-go/ratelimit"
)

// Options are the dependencies of the HTTP surface.
type Options struct {
	Facilitator  *core.Facilitator
	Limiter      *ratelimit.Limiter
	Auth         *auth.Authenticator
	MaxBodyBytes int64
	Logger       *logrus.Entry

	// TrustedProxies are the proxies allowed to name the client in
	// X-Forwarded-For. Nil trusts none, so the client is the socket peer.
	TrustedProxies []string
}

// Handler serves the facilitator endpoints.
type Handler struct {
	facilitator *core.Facilitator
	logger      *logrus.Entry
}

// NewRouter builds the gin engine. A nil limiter or authenticator disables
// that middleware.
func NewRouter(o Options) *gin.Engine {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger := o.Logger.WithField("prefix", "api")

	h := &Handler{
		facilitator: o.Facilitator,
		logger:      logger,
	}

	router := gin.New()
	if err := router.SetTrustedProxies(o.TrustedProxies); err != nil {
		logger.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		gin.Recovery(),
		requestID(),
		accessLog(logger),
		bodyLimit(o.MaxBodyBytes),
	)

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/supported-networks", h.SupportedNetworks)

	payments := router.Group("/")
	if o.Limiter != nil {
		payments.Use(o.Limiter.Middleware())
	}
	if o.Auth != nil && o.Auth.Enabled() {
		payments.Use(o.Auth.Middleware())
	}
	payments.POST("/verify", h.Verify)
	payments.POST("/settle", h.Settle)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
