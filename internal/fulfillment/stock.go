package fulfillment

import (
	"context"
	"fmt"
	"log"

	"elmstone_back_end/internal/models"
)

// Nombre de tentatives CAS avant d'abandonner un SKU. Chaque échec signifie
// qu'un checkout concurrent a bougé le stock entre la lecture et l'écriture.
const maxStockRetries = 5

// stockAdjustment trace le décrément d'un SKU pour le contrôle de cohérence.
type stockAdjustment struct {
	SKU    int
	Before int
	After  int
	// Edited est posé quand la quantité commandée est strictement positive.
	// Comportement historique conservé tel quel : c'est la quantité
	// commandée qui est testée, pas le delta de stock réellement appliqué.
	// À clarifier avec le métier avant de changer quoi que ce soit.
	Edited bool
}

// adjustStock décrémente le stock de chaque SKU commandé via un décrément
// conditionnel (UPDATE ... IF stock = ?) avec relecture et nouvelle
// tentative en cas de contention. Sous des checkouts concurrents sur le
// même SKU, le stock final vaut toujours stock initial − Σ quantités.
// Les échecs par SKU sont remontés comme échecs partiels, pas avalés.
func (p *Pipeline) adjustStock(ctx context.Context, items []models.CompoundLineItem) []StepFailure {
	skus := make([]int, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.Product.SKU)
	}

	stocks, err := p.Products.StockBySKU(ctx, skus)
	if err != nil {
		return []StepFailure{{Step: "stock_read", Err: err}}
	}

	var failures []StepFailure
	var adjustments []stockAdjustment

	for _, item := range items {
		sku := item.Product.SKU
		quantity := item.Quantity()

		current, ok := stocks[sku]
		if !ok {
			failures = append(failures, StepFailure{Step: "stock_adjust",
				Err: fmt.Errorf("SKU %d absent de la lecture stock", sku)})
			continue
		}

		adj, err := p.decrementStock(ctx, sku, quantity, current)
		if err != nil {
			failures = append(failures, StepFailure{Step: "stock_adjust", Err: err})
			continue
		}
		adjustments = append(adjustments, adj)
	}

	// Contrôle de cohérence : toute ligne non marquée éditée est suspecte.
	for _, adj := range adjustments {
		if !adj.Edited {
			log.Printf("⚠️ Stock inchangé pour SKU %d (%d → %d)", adj.SKU, adj.Before, adj.After)
		} else {
			log.Printf("✅ Stock SKU %d : %d → %d", adj.SKU, adj.Before, adj.After)
		}
	}

	return failures
}

func (p *Pipeline) decrementStock(ctx context.Context, sku, quantity, current int) (stockAdjustment, error) {
	for attempt := 0; attempt < maxStockRetries; attempt++ {
		if current < quantity {
			return stockAdjustment{}, fmt.Errorf("stock insuffisant SKU %d: %d dispo, %d commandé",
				sku, current, quantity)
		}

		applied, err := p.Products.CompareAndSetStock(ctx, sku, current, current-quantity)
		if err != nil {
			return stockAdjustment{}, err
		}
		if applied {
			return stockAdjustment{
				SKU:    sku,
				Before: current,
				After:  current - quantity,
				Edited: quantity > 0,
			}, nil
		}

		// Contention : un autre checkout a bougé ce SKU. On relit et on retente.
		fresh, err := p.Products.StockBySKU(ctx, []int{sku})
		if err != nil {
			return stockAdjustment{}, err
		}
		var ok bool
		if current, ok = fresh[sku]; !ok {
			return stockAdjustment{}, fmt.Errorf("SKU %d disparu pendant la mise à jour du stock", sku)
		}
	}
	return stockAdjustment{}, fmt.Errorf("SKU %d: contention stock persistante après %d tentatives",
		sku, maxStockRetries)
}
