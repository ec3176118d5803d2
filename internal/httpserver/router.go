package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"luxuryestates/internal/handler"
	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/otel"
	"luxuryestates/pkg/rbac"
)

// Pinger 是 readyz 依赖的数据库检查，*pgxpool.Pool 满足该接口
type Pinger interface {
	Ping(ctx context.Context) error
}

// MailCircuit *mailer.BreakerSender 满足该接口
type MailCircuit interface {
	State() circuitbreaker.State
}

// Health readyz 的依赖；Mail 可为 nil
type Health struct {
	DB   Pinger
	Mail MailCircuit
}

type Handlers struct {
	Auth     *handler.AuthHandler
	Alert    *handler.AlertHandler
	Property *handler.PropertyHandler
	Review   *handler.ReviewHandler
	Booking  *handler.BookingHandler
	Contact  *handler.ContactHandler
	Admin    *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

// 上传的图片和视频先放内存，超出部分落盘
const maxMultipartMemory = 32 << 20

func NewRouter(h Handlers, jwtSecret string, health Health, logger *zap.Logger) *Router {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), AccessLog(logger))

	registerHealth(r, health)

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)
	r.POST("/alerts", h.Alert.Create)
	r.GET("/properties", h.Property.Search)
	r.GET("/properties/:id", h.Property.Get)
	// Stripe 回调，靠签名鉴权
	r.POST("/bookings/webhook", h.Booking.Webhook)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/me", h.Auth.Me)

		auth.POST("/properties", h.Property.Create)
		auth.PUT("/properties/:id", h.Property.Update)
		auth.DELETE("/properties/:id", h.Property.Delete)
		auth.DELETE("/properties/:id/images/:index", h.Property.DeleteImage)
		auth.DELETE("/properties/:id/virtual-tour", h.Property.DeleteVirtualTour)

		auth.POST("/properties/:id/reviews", h.Review.Create)
		auth.DELETE("/properties/:id/reviews/:reviewId", h.Review.Delete)

		auth.POST("/bookings/checkout", h.Booking.Checkout)
		auth.POST("/contact-agent", h.Contact.Send)
	}

	admin := auth.Group("/admin")
	admin.Use(RequirePermission(rbac.PermissionReplayOutbox))
	{
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// NewHealthRouter worker 进程只暴露健康检查和指标
func NewHealthRouter(health Health) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	registerHealth(r, health)
	return &Router{Engine: r}
}

func registerHealth(r *gin.Engine, health Health) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := health.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		// 邮件熔断打开时仍然 ready，只在响应里报告
		body := gin.H{"status": "ready"}
		if health.Mail != nil {
			body["mail_circuit"] = health.Mail.State().String()
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
