package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"

	"elmstone_back_end/internal/cache"
	"elmstone_back_end/internal/config"
	"elmstone_back_end/internal/database"
	"elmstone_back_end/internal/fulfillment"
	"elmstone_back_end/internal/handlers/admin"
	"elmstone_back_end/internal/handlers/payement"
	"elmstone_back_end/internal/handlers/webhook"
	"elmstone_back_end/internal/routes"
	"elmstone_back_end/internal/services"
	"elmstone_back_end/internal/store"
	"elmstone_back_end/internal/utils"
)

func main() {
	config.Load()

	secret := os.Getenv("STRIPE_SECRET_KEY")
	stripe.Key = secret
	if stripe.Key == "" {
		log.Fatal("❌ Impossible d'initialiser Stripe : clé manquante")
	}
	log.Println("✅ Stripe initialisé")

	database.ConnectDatabases()
	defer database.CloseScylla()

	ordersSession, err := database.GetOrdersSession()
	if err != nil {
		log.Fatalf("❌ Session orders indisponible: %v", err)
	}
	productsSession, err := database.GetProductsSession()
	if err != nil {
		log.Fatalf("❌ Session products indisponible: %v", err)
	}

	orders := &store.Orders{Session: ordersSession}
	products := &store.Products{Session: productsSession}
	events := &store.Events{Session: ordersSession}

	analytics := services.NewGA4(os.Getenv("GA4_MEASUREMENT_ID"), os.Getenv("GA4_API_SECRET"))
	carrier := services.NewRoyalMail(os.Getenv("ROYAL_MAIL_API_KEY"))

	// Tout le pipeline est construit ici, une fois, et passé par référence.
	// Aucun client n'est fabriqué à l'import.
	pipeline := &fulfillment.Pipeline{
		Orders:     orders,
		Products:   products,
		Events:     events,
		EventCache: cache.Events{},
		Stripe:     services.StripeLineItems{},
		Carrier:    carrier,
		Analytics:  analytics,
		Mailer:     utils.OrderMailer{},
		Archiver:   services.ManifestArchive{},
		Indexer:    services.OrderIndex{},
		Production: config.IsProduction(),
	}

	if !pipeline.Production {
		log.Println("⚠️ Environnement non production : stock et transporteur désactivés")
	}

	h := routes.Handlers{
		Webhook: &webhook.Handler{
			Pipeline:       pipeline,
			Analytics:      analytics,
			PurchaseSecret: os.Getenv("STRIPE_PURCHASE_WEBHOOK_SECRET"),
			GeneralSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Checkout: &payement.Handler{Products: products},
		Admin:    &admin.Handler{Orders: orders, Search: &services.OrderIndex{}},
	}

	r := gin.Default()
	routes.RegisterRoutes(r, h)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Serveur Elmstone lancé sur le port", port)
	r.Run(":" + port)
}
