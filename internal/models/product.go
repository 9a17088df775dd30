package models

import "time"

// Formats de colis acceptés par le transporteur. Deux paliers seulement :
// l'intégration Click & Drop actuelle ne connaît rien d'autre.
const (
	PackageFormatSmall  = "smallParcel"
	PackageFormatMedium = "mediumParcel"
)

// Product est un produit du catalogue. Le pipeline de commande lit ce
// modèle et ne mute que le stock ; le cycle de vie appartient au back-office.
type Product struct {
	SKU                 int       `json:"sku" db:"sku"`
	StripeProductID     string    `json:"stripe_product_id" db:"stripe_product_id"`
	Name                string    `json:"name" db:"name"`
	Category            string    `json:"category" db:"category"`
	Price               float64   `json:"price" db:"price"`
	Stock               int       `json:"stock" db:"stock"`
	Weight              *float64  `json:"weight" db:"weight"` // grammes, nullable
	PackageTypeOverride string    `json:"package_type_override" db:"package_type_override"`
	CustomsDescription  string    `json:"customs_description" db:"customs_description"`
	CustomsCode         string    `json:"customs_code" db:"customs_code"`
	IsActive            bool      `json:"is_active" db:"is_active"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// WeightGrams retourne le poids du produit, 0 si non renseigné.
func (p Product) WeightGrams() float64 {
	if p.Weight == nil {
		return 0
	}
	return *p.Weight
}
