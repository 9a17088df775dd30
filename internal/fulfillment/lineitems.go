package fulfillment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v83"

	"elmstone_back_end/internal/models"
)

// compoundLineItems liste les lignes Stripe de la session (100 max) et les
// joint aux produits catalogue par SKU. Échec dur si une ligne n'a pas de
// prix (session malformée) ou si un SKU est absent du catalogue (violation
// d'intégrité) : jamais de résultat partiel.
func (p *Pipeline) compoundLineItems(ctx context.Context, sessionID string) ([]models.CompoundLineItem, error) {
	lineItems, err := p.Stripe.ListLineItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lecture lignes session %s: %w", sessionID, err)
	}

	skus := make([]int, 0, len(lineItems))
	for _, li := range lineItems {
		if li.Price == nil {
			return nil, fmt.Errorf("ligne %s: %w", li.ID, ErrMissingPrice)
		}
		sku, err := lineItemSKU(li.Price.Product)
		if err != nil {
			return nil, fmt.Errorf("ligne %s: %w", li.ID, err)
		}
		skus = append(skus, sku)
	}

	products, err := p.Products.ProductsBySKU(ctx, skus)
	if err != nil {
		return nil, err
	}

	// Jointure en conservant l'ordre des lignes Stripe.
	compound := make([]models.CompoundLineItem, 0, len(lineItems))
	for i, li := range lineItems {
		product, ok := products[skus[i]]
		if !ok {
			return nil, fmt.Errorf("SKU %d: %w", skus[i], ErrUnknownProduct)
		}
		compound = append(compound, models.CompoundLineItem{LineItem: li, Product: product})
	}
	return compound, nil
}

// lineItemSKU extrait le SKU des métadonnées du produit Stripe (étendu via
// data.price.product). L'absence de metadata.sku est un défaut de qualité
// de données amont.
func lineItemSKU(product *stripe.Product) (int, error) {
	if product == nil {
		return 0, ErrMissingSKU
	}
	raw, ok := product.Metadata["sku"]
	if !ok || raw == "" {
		return 0, ErrMissingSKU
	}
	sku, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: sku %q non numérique", ErrMissingSKU, raw)
	}
	return sku, nil
}
