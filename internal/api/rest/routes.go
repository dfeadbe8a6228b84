package rest

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mukando/payment-service/internal/api/rest/handlers"
	"github.com/mukando/payment-service/internal/api/rest/middleware"
	"github.com/mukando/payment-service/internal/flow"
	"github.com/mukando/payment-service/internal/service"
	"github.com/mukando/payment-service/pkg/logger"
)

// Zimbabwean mobile numbers in international format, restricted to the
// carrier prefixes the wallets run on (71 NetOne, 73 Telecel, 77/78 Econet).
var zimPhonePattern = regexp.MustCompile(`^\+263(7[1378])[0-9]{7}$`)

// SetupRouter configures the gin router with routes and middleware.
func SetupRouter(processor *service.Processor, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("zimphone", func(fl validator.FieldLevel) bool {
			return zimPhonePattern.MatchString(fl.Field().String())
		})
	}

	paymentHandler := handlers.NewPaymentHandler(processor, log)
	checkoutHandler := handlers.NewCheckoutHandler(processor.Reader(), flow.DefaultPollInterval, log)
	webhookHandler := handlers.NewWebhookHandler(processor, log)
	healthHandler := handlers.NewHealthHandler(processor)

	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.CreatePayment)
			payments.GET("/methods", paymentHandler.GetMethods)
			payments.POST("/retry", paymentHandler.RetryPayment)
			payments.GET("/:reference/status", paymentHandler.GetStatus)
			payments.POST("/:reference/cancel", paymentHandler.CancelPayment)
		}

		checkout := v1.Group("/checkout")
		{
			checkout.POST("", checkoutHandler.CreateSession)
			checkout.GET("/:reference", checkoutHandler.GetSession)
			checkout.POST("/:reference/submit", checkoutHandler.SubmitVerification)
			checkout.POST("/:reference/retry", checkoutHandler.RetrySession)
			checkout.POST("/:reference/cancel", checkoutHandler.CancelSession)
		}
	}

	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/pesepay", webhookHandler.HandlePesePayWebhook)
	}

	return r
}
