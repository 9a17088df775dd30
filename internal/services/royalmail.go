package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"elmstone_back_end/internal/models"
)

// URL de création de commande Click & Drop. Contrat fixe du transporteur.
const RoyalMailOrdersURL = "https://api.parcel.royalmail.com/api/v1/orders"

// ErrCarrierNotConfigured : pas de clé API, on court-circuite avant tout
// appel réseau.
var ErrCarrierNotConfigured = errors.New("clé API transporteur manquante")

// RoyalMail est le client Click & Drop. Construit une fois au démarrage.
type RoyalMail struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func NewRoyalMail(apiKey string) *RoyalMail {
	return &RoyalMail{
		APIKey:  apiKey,
		BaseURL: RoyalMailOrdersURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitOrder poste la commande au transporteur. Les erreurs de validation
// transporteur ne sont PAS des erreurs Go : elles reviennent dans la
// réponse (errorsCount > 0) et c'est à l'appelant de les remonter.
func (rm *RoyalMail) SubmitOrder(ctx context.Context, order models.CarrierOrderRequest) (*models.CarrierOrderResponse, error) {
	if rm.APIKey == "" {
		return nil, ErrCarrierNotConfigured
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("sérialisation commande transporteur: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rm.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rm.APIKey)

	res, err := rm.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("appel transporteur: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("lecture réponse transporteur: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("transporteur a répondu %d: %s", res.StatusCode, string(raw))
	}

	var parsed models.CarrierOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("décodage réponse transporteur: %w", err)
	}

	log.Printf("📮 Royal Mail : %d créée(s), %d erreur(s)", parsed.SuccessCount, parsed.ErrorsCount)
	return &parsed, nil
}
