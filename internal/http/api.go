package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-market/internal/auth"
	"mail-market/internal/metrics"
	"mail-market/internal/ratelimit"
	"mail-market/internal/service"
	"mail-market/internal/storage"
)

// Deps are the collaborators the HTTP layer needs. Limiter and Archive are
// optional.
type Deps struct {
	Users      service.UserService
	Purchases  service.PurchaseService
	Deposits   service.DepositService
	Payments   service.PaymentService
	Tokens     *auth.TokenManager
	Limiter    ratelimit.Limiter
	Archive    storage.Archive
	AdminKey   string
	CORSOrigin string
	Logger     logrus.FieldLogger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users      service.UserService
	purchases  service.PurchaseService
	deposits   service.DepositService
	payments   service.PaymentService
	tokens     *auth.TokenManager
	limiter    ratelimit.Limiter
	archive    storage.Archive
	adminKey   string
	corsOrigin string
	log        logrus.FieldLogger
}

func NewHandler(deps Deps) *Handler {
	origin := strings.TrimSpace(deps.CORSOrigin)
	if origin == "" {
		origin = "*"
	}
	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		users:      deps.Users,
		purchases:  deps.Purchases,
		deposits:   deps.Deposits,
		payments:   deps.Payments,
		tokens:     deps.Tokens,
		limiter:    deps.Limiter,
		archive:    deps.Archive,
		adminKey:   deps.AdminKey,
		corsOrigin: origin,
		log:        log.WithField("component", "http"),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.corsMiddleware(), requestLogger(h.log), metrics.Middleware())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.GET("/prices", h.listPrices)
		api.GET("/stock", h.getStock)
		api.POST("/register", h.register)
		api.POST("/login", h.login)
		api.POST("/payment/auto/webhook", h.checkoutWebhook)

		user := api.Group("")
		user.Use(h.authMiddleware())
		{
			user.GET("/me", h.me)
			user.POST("/mail", h.rateLimitMiddleware(), h.buyMail)
			user.GET("/purchase-history", h.purchaseHistory)
			user.GET("/payment-methods", h.listPaymentMethods)
			user.POST("/deposit/request", h.requestDeposit)
			user.GET("/deposits", h.myDeposits)
			user.POST("/payment/auto/checkout", h.startCheckout)
		}

		admin := api.Group("/admin")
		admin.Use(h.adminMiddleware())
		{
			admin.GET("/payment-methods", h.listPaymentMethods)
			admin.PUT("/payment-methods", h.replacePaymentMethods)
			admin.GET("/deposits", h.pendingDeposits)
			admin.POST("/deposits/:id/approve", h.approveDeposit)
			admin.POST("/deposits/:id/cancel", h.cancelDeposit)
			admin.GET("/orphans", h.listOrphans)
		}
	}
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Admin-Key")
		if h.corsOrigin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
