package models

import (
	"time"

	"github.com/stripe/stripe-go/v83"
)

// Order représente une commande créée depuis une session Stripe complétée.
// L'identifiant EST l'identifiant de session Stripe : une session = une commande.
type Order struct {
	ID           string    `json:"id" db:"order_id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Street       string    `json:"street" db:"street"`
	City         string    `json:"city" db:"city"`
	PostalCode   string    `json:"postal_code" db:"postal_code"`
	Country      string    `json:"country" db:"country"`
	TotalValue   float64   `json:"total_value" db:"total_value"`
	DeliveryCost float64   `json:"delivery_cost" db:"delivery_cost"`
	PlacedAt     time.Time `json:"placed_at" db:"placed_at"`
	Fulfilled    bool      `json:"fulfilled" db:"fulfilled"`
	Dispatched   bool      `json:"dispatched" db:"dispatched"`

	// StockAdjusted est posé une fois le stock décrémenté pour cette
	// commande : une reprise après redélivrance ne re-décrémente jamais.
	StockAdjusted bool `json:"-" db:"stock_adjusted"`
}

// OrderProduct est une ligne de commande. Immuable après création.
type OrderProduct struct {
	OrderID   string  `json:"order_id" db:"order_id"`
	SKU       int     `json:"sku" db:"sku"`
	Quantity  int     `json:"quantity" db:"quantity"`
	LineValue float64 `json:"line_value" db:"line_value"`
}

// CompoundLineItem associe une ligne Stripe au produit catalogue correspondant.
// Transitoire : n'existe que pendant l'exécution du pipeline, jamais persisté.
type CompoundLineItem struct {
	LineItem *stripe.LineItem
	Product  Product
}

// Quantity retourne la quantité commandée de la ligne.
func (c CompoundLineItem) Quantity() int {
	return int(c.LineItem.Quantity)
}

// LineValue retourne le montant total de la ligne en unités décimales.
func (c CompoundLineItem) LineValue() float64 {
	return float64(c.LineItem.AmountTotal) / 100
}
