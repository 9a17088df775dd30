package payement

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"

	"elmstone_back_end/internal/store"
)

// Handler crée les sessions de checkout Stripe.
type Handler struct {
	Products *store.Products
}

type checkoutItem struct {
	SKU      int `json:"sku" binding:"required"`
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// CreateCheckoutSession crée une session Stripe à partir du panier soumis.
// Les identifiants analytics du client sont posés dans les metadata de la
// session : c'est ce qui permet de corréler l'événement purchase serveur
// avec la session analytics du navigateur au retour du webhook.
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var req struct {
		Items       []checkoutItem `json:"items" binding:"required,min=1,dive"`
		GAClientID  string         `json:"ga_client_id"`
		GASessionID string         `json:"ga_session_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()

	// Valider chaque ligne contre le catalogue : produit actif, stock suffisant.
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		product, err := h.Products.GetProduct(ctx, item.SKU)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable", "sku": item.SKU})
			return
		}
		if !product.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Produit indisponible", "sku": item.SKU})
			return
		}
		if product.Stock < item.Quantity {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Stock insuffisant",
				"product":   product.Name,
				"available": product.Stock,
				"requested": item.Quantity,
			})
			return
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("gbp"),
				UnitAmount: stripe.Int64(int64(product.Price * 100)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(product.Name),
					Metadata: map[string]string{
						"sku": strconv.Itoa(product.SKU),
					},
				},
			},
		})
	}

	baseURL := os.Getenv("STOREFRONT_BASE_URL")

	// Référence interne du panier, renvoyée au storefront pour rapprocher
	// ses logs des nôtres.
	basketRef := uuid.NewString()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		ClientReferenceID: stripe.String(basketRef),
		SuccessURL:        stripe.String(baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(baseURL + "/basket"),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"GB", "IE", "FR", "DE", "BE", "NL"}),
		},
		Metadata: map[string]string{
			"gaClientID":  req.GAClientID,
			"gaSessionID": req.GASessionID,
		},
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		log.Printf("❌ Erreur Stripe: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création session", "details": err.Error()})
		return
	}

	log.Printf("💳 Session checkout créée: %s (%d article(s))", s.ID, len(req.Items))

	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID,
		"url":        s.URL,
		"basket_ref": basketRef,
	})
}
