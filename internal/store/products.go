package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"elmstone_back_end/internal/models"
)

// Products encapsule l'accès au catalogue (keyspace products). Le pipeline
// ne mute que le stock ; tout le reste appartient au back-office catalogue.
type Products struct {
	Session *gocql.Session
}

// ProductsBySKU récupère un lot de produits en une seule requête.
func (s *Products) ProductsBySKU(ctx context.Context, skus []int) (map[int]models.Product, error) {
	iter := s.Session.Query(`
		SELECT sku, stripe_product_id, name, category, price, stock, weight,
			package_type_override, customs_description, customs_code, is_active
		FROM products WHERE sku IN ?`, skus).
		WithContext(ctx).Iter()

	result := make(map[int]models.Product, len(skus))
	for {
		var p models.Product
		if !iter.Scan(&p.SKU, &p.StripeProductID, &p.Name, &p.Category, &p.Price, &p.Stock,
			&p.Weight, &p.PackageTypeOverride, &p.CustomsDescription, &p.CustomsCode, &p.IsActive) {
			break
		}
		result[p.SKU] = p
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture produits %v: %w", skus, err)
	}
	return result, nil
}

// GetProduct retourne un produit par SKU.
func (s *Products) GetProduct(ctx context.Context, sku int) (*models.Product, error) {
	products, err := s.ProductsBySKU(ctx, []int{sku})
	if err != nil {
		return nil, err
	}
	p, ok := products[sku]
	if !ok {
		return nil, gocql.ErrNotFound
	}
	return &p, nil
}

// StockBySKU lit le stock courant d'un lot de SKU.
func (s *Products) StockBySKU(ctx context.Context, skus []int) (map[int]int, error) {
	iter := s.Session.Query(`SELECT sku, stock FROM products WHERE sku IN ?`, skus).
		WithContext(ctx).Iter()

	result := make(map[int]int, len(skus))
	var sku, stock int
	for iter.Scan(&sku, &stock) {
		result[sku] = stock
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture stock %v: %w", skus, err)
	}
	return result, nil
}

// CompareAndSetStock décrémente le stock de façon conditionnelle (LWT).
// Retourne false si le stock a bougé entre la lecture et l'écriture :
// l'appelant relit et retente. C'est ce qui rend le décrément sûr sous
// des checkouts concurrents sur le même SKU.
func (s *Products) CompareAndSetStock(ctx context.Context, sku, expected, next int) (bool, error) {
	applied, err := s.Session.Query(
		`UPDATE products SET stock = ? WHERE sku = ? IF stock = ?`,
		next, sku, expected,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("mise à jour stock SKU %d: %w", sku, err)
	}
	return applied, nil
}
