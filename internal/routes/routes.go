package routes

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"elmstone_back_end/internal/handlers/admin"
	"elmstone_back_end/internal/handlers/payement"
	"elmstone_back_end/internal/handlers/webhook"
	"elmstone_back_end/internal/middleware"
)

// Handlers regroupe les handlers construits au démarrage.
type Handlers struct {
	Webhook  *webhook.Handler
	Checkout *payement.Handler
	Admin    *admin.Handler
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	corsConfig := cors.DefaultConfig()
	if origin := os.Getenv("STOREFRONT_BASE_URL"); origin != "" {
		corsConfig.AllowOrigins = []string{origin}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	api := r.Group("/api")

	// Webhook Stripe : pas de middleware, la signature EST l'authentification
	api.POST("/stripe/webhook", h.Webhook.HandleStripeWebhook)

	// Checkout storefront
	api.POST("/checkout/session", h.Checkout.CreateCheckoutSession)

	// Back-office staff
	staff := api.Group("/admin")
	staff.Use(middleware.AuthRequired(), middleware.RequireAdmin, middleware.APIRateLimit())
	{
		staff.GET("/orders", h.Admin.ListOrders)
		staff.GET("/orders/search", h.Admin.SearchOrders)
		staff.GET("/orders/:id", h.Admin.GetOrder)
		staff.PATCH("/orders/:id/fulfilled", h.Admin.SetFulfilled)
	}
}
