package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"
	stripewebhook "github.com/stripe/stripe-go/v83/webhook"

	"elmstone_back_end/internal/fulfillment"
	"elmstone_back_end/internal/services"
)

// Handler reçoit les webhooks Stripe. Deux secrets candidats : le secret
// dédié aux achats d'abord, le secret webhook général en repli.
type Handler struct {
	Pipeline       *fulfillment.Pipeline
	Analytics      *services.GA4
	PurchaseSecret string
	GeneralSecret  string
}

// Codes retour canoniques du webhook :
//   401 secret ou signature manquants
//   400 signature invalide ou payload illisible
//   409 données amont malformées (détails manquants, produit inconnu...)
//   502 refus ou indisponibilité transporteur
//   200 succès — y compris événement déjà traité, pour que Stripe arrête
//       de redélivrer
func (h *Handler) HandleStripeWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	// Le corps brut est lu et vérifié AVANT tout parsing métier : on ne
	// fait jamais confiance à un payload non signé.
	payload, err := c.GetRawData()
	if err != nil {
		log.Println("❌ Lecture payload échouée:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature Stripe manquante"})
		return
	}
	if h.PurchaseSecret == "" && h.GeneralSecret == "" {
		log.Println("❌ Aucun secret webhook configuré")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Webhook non configuré"})
		return
	}

	event, err := h.verifyEvent(payload, signature)
	if err != nil {
		log.Println("❌ Signature Stripe invalide:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature invalide"})
		return
	}

	log.Printf("📥 Événement Stripe reçu : %s (%s)", event.Type, event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(c, event)
	case "refund.created":
		h.handleRefundCreated(c, event)
	default:
		log.Printf("ℹ️ Événement ignoré : %s", event.Type)
		c.Status(http.StatusOK)
	}
}

// verifyEvent essaye le secret achats puis le secret général.
func (h *Handler) verifyEvent(payload []byte, signature string) (stripe.Event, error) {
	// La tolérance borne l'âge du timestamp signé ; le pin de version API
	// reste du ressort du SDK, pas de la vérification de signature.
	opts := stripewebhook.ConstructEventOptions{
		Tolerance:                5 * time.Minute,
		IgnoreAPIVersionMismatch: true,
	}

	var lastErr error
	for _, secret := range []string{h.PurchaseSecret, h.GeneralSecret} {
		if secret == "" {
			continue
		}
		event, err := stripewebhook.ConstructEventWithOptions(payload, signature, secret, opts)
		if err == nil {
			return event, nil
		}
		lastErr = err
	}
	return stripe.Event{}, lastErr
}

func (h *Handler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Println("❌ Erreur décodage CheckoutSession:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload illisible"})
		return
	}

	outcome, err := h.Pipeline.Run(c.Request.Context(), event.ID, &session)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrMissingDetails),
			errors.Is(err, fulfillment.ErrMissingPrice),
			errors.Is(err, fulfillment.ErrMissingSKU),
			errors.Is(err, fulfillment.ErrUnknownProduct):
			log.Printf("❌ Données amont invalides pour %s: %v", session.ID, err)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrCarrierNotConfigured):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Transporteur non configuré"})
		default:
			log.Printf("❌ Échec pipeline pour %s: %v", session.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur traitement commande"})
		}
		return
	}

	if outcome.AlreadyProcessed {
		c.JSON(http.StatusOK, gin.H{"message": "Événement déjà traité"})
		return
	}

	if len(outcome.CarrierErrors) > 0 {
		// Le transporteur a refusé : on remonte ses erreurs telles quelles.
		// Stripe n'en fait rien mais les logs et la redélivrance si.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":          "Commande refusée par le transporteur",
			"carrier_errors": outcome.CarrierErrors,
		})
		return
	}

	response := gin.H{"order_id": outcome.Order.ID, "items": len(outcome.Items)}
	if len(outcome.PartialFailures) > 0 {
		steps := make([]string, 0, len(outcome.PartialFailures))
		for _, f := range outcome.PartialFailures {
			steps = append(steps, f.Step)
		}
		response["partial_failures"] = steps
	}
	c.JSON(http.StatusOK, response)
}

// handleRefundCreated émet l'événement refund GA4. Best-effort : la
// réponse est 200 quoi qu'il arrive, un remboursement n'a pas de chaîne
// d'expédition à faire échouer.
func (h *Handler) handleRefundCreated(c *gin.Context, event stripe.Event) {
	var refund stripe.Refund
	if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
		log.Println("❌ Erreur décodage Refund:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload illisible"})
		return
	}

	clientID := refund.Metadata["gaClientID"]
	if clientID == "" || h.Analytics == nil {
		log.Printf("ℹ️ Remboursement %s sans gaClientID, événement GA4 ignoré", refund.ID)
		c.Status(http.StatusOK)
		return
	}

	transactionID := refund.Metadata["checkout_session_id"]
	if transactionID == "" && refund.PaymentIntent != nil {
		transactionID = refund.PaymentIntent.ID
	}
	value := float64(refund.Amount) / 100

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Analytics.SendRefund(ctx, clientID, transactionID, value); err != nil {
			log.Printf("⚠️ Échec émission refund GA4 pour %s: %v", refund.ID, err)
		}
	}()

	c.Status(http.StatusOK)
}
