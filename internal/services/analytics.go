package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"elmstone_back_end/internal/models"
)

// Endpoint Measurement Protocol de GA4.
const GA4CollectURL = "https://www.google-analytics.com/mp/collect"

// GA4 émet les événements purchase/refund vers Google Analytics. Tout ici
// est best-effort : l'appelant logge les échecs et n'en fait rien d'autre.
type GA4 struct {
	MeasurementID string
	APISecret     string
	BaseURL       string
	HTTP          *http.Client
}

func NewGA4(measurementID, apiSecret string) *GA4 {
	return &GA4{
		MeasurementID: measurementID,
		APISecret:     apiSecret,
		BaseURL:       GA4CollectURL,
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}
}

type ga4Item struct {
	ItemID       string  `json:"item_id"`
	ItemName     string  `json:"item_name"`
	ItemCategory string  `json:"item_category,omitempty"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
}

type ga4Event struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

type ga4Payload struct {
	ClientID string     `json:"client_id"`
	Events   []ga4Event `json:"events"`
}

// SendPurchase émet l'événement purchase corrélé à la session analytics du
// client (les IDs ont été posés dans les metadata Stripe à la création du
// checkout).
func (g *GA4) SendPurchase(ctx context.Context, clientID, sessionID string, order models.Order, items []models.CompoundLineItem) error {
	gaItems := make([]ga4Item, 0, len(items))
	for _, item := range items {
		gaItems = append(gaItems, ga4Item{
			ItemID:       fmt.Sprintf("%d", item.Product.SKU),
			ItemName:     item.Product.Name,
			ItemCategory: item.Product.Category,
			Quantity:     item.Quantity(),
			Price:        item.LineValue(),
		})
	}

	params := map[string]interface{}{
		"transaction_id": order.ID,
		"value":          order.TotalValue,
		"currency":       "GBP",
		"shipping":       order.DeliveryCost,
		"items":          gaItems,
	}
	if sessionID != "" {
		params["session_id"] = sessionID
	}

	return g.send(ctx, ga4Payload{
		ClientID: clientID,
		Events:   []ga4Event{{Name: "purchase", Params: params}},
	})
}

// SendRefund émet l'événement refund pour une transaction remboursée.
func (g *GA4) SendRefund(ctx context.Context, clientID, transactionID string, value float64) error {
	return g.send(ctx, ga4Payload{
		ClientID: clientID,
		Events: []ga4Event{{
			Name: "refund",
			Params: map[string]interface{}{
				"transaction_id": transactionID,
				"value":          value,
				"currency":       "GBP",
			},
		}},
	})
}

func (g *GA4) send(ctx context.Context, payload ga4Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s?measurement_id=%s&api_secret=%s", g.BaseURL, g.MeasurementID, g.APISecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("GA4 a répondu %d", res.StatusCode)
	}
	return nil
}
