package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"elmstone_back_end/internal/models"
)

// Orders encapsule l'accès aux tables de commandes (keyspace orders).
type Orders struct {
	Session *gocql.Session
}

// InsertOrder insère une commande avec IF NOT EXISTS : une session Stripe
// redélivrée ne peut jamais produire une deuxième ligne.
func (s *Orders) InsertOrder(ctx context.Context, o models.Order) (bool, error) {
	applied, err := s.Session.Query(`
		INSERT INTO orders (order_id, email, name, street, city, postal_code, country,
			total_value, delivery_cost, placed_at, fulfilled, dispatched, stock_adjusted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		o.ID, o.Email, o.Name, o.Street, o.City, o.PostalCode, o.Country,
		o.TotalValue, o.DeliveryCost, o.PlacedAt, o.Fulfilled, o.Dispatched, o.StockAdjusted,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("insertion commande %s: %w", o.ID, err)
	}
	return applied, nil
}

// InsertOrderProducts écrit les lignes de commande en un seul batch.
func (s *Orders) InsertOrderProducts(ctx context.Context, products []models.OrderProduct) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, p := range products {
		batch.Query(`INSERT INTO order_products (order_id, sku, quantity, line_value)
			VALUES (?, ?, ?, ?)`,
			p.OrderID, p.SKU, p.Quantity, p.LineValue)
	}
	if err := s.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("insertion lignes de commande: %w", err)
	}
	return nil
}

// GetOrder retourne une commande par identifiant de session.
func (s *Orders) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	err := s.Session.Query(`
		SELECT order_id, email, name, street, city, postal_code, country,
			total_value, delivery_cost, placed_at, fulfilled, dispatched, stock_adjusted
		FROM orders WHERE order_id = ?`, orderID).
		WithContext(ctx).
		Scan(&o.ID, &o.Email, &o.Name, &o.Street, &o.City, &o.PostalCode, &o.Country,
			&o.TotalValue, &o.DeliveryCost, &o.PlacedAt, &o.Fulfilled, &o.Dispatched, &o.StockAdjusted)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrderProducts retourne les lignes d'une commande.
func (s *Orders) GetOrderProducts(ctx context.Context, orderID string) ([]models.OrderProduct, error) {
	iter := s.Session.Query(`
		SELECT order_id, sku, quantity, line_value
		FROM order_products WHERE order_id = ?`, orderID).
		WithContext(ctx).Iter()

	var products []models.OrderProduct
	var p models.OrderProduct
	for iter.Scan(&p.OrderID, &p.SKU, &p.Quantity, &p.LineValue) {
		products = append(products, p)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture lignes de commande %s: %w", orderID, err)
	}
	return products, nil
}

// ListOrders retourne les commandes les plus récentes pour le back-office.
func (s *Orders) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	iter := s.Session.Query(`
		SELECT order_id, email, name, street, city, postal_code, country,
			total_value, delivery_cost, placed_at, fulfilled, dispatched
		FROM orders LIMIT ?`, limit).
		WithContext(ctx).Iter()

	var orders []models.Order
	var o models.Order
	for iter.Scan(&o.ID, &o.Email, &o.Name, &o.Street, &o.City, &o.PostalCode, &o.Country,
		&o.TotalValue, &o.DeliveryCost, &o.PlacedAt, &o.Fulfilled, &o.Dispatched) {
		orders = append(orders, o)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture commandes: %w", err)
	}
	return orders, nil
}

// SetFulfilled : seul champ mutable par le staff après création.
func (s *Orders) SetFulfilled(ctx context.Context, orderID string, fulfilled bool) error {
	return s.Session.Query(`UPDATE orders SET fulfilled = ? WHERE order_id = ?`,
		fulfilled, orderID).WithContext(ctx).Exec()
}

// SetDispatched est posé par le pipeline quand le transporteur accepte la commande.
func (s *Orders) SetDispatched(ctx context.Context, orderID string) error {
	return s.Session.Query(`UPDATE orders SET dispatched = true WHERE order_id = ?`,
		orderID).WithContext(ctx).Exec()
}

// SetStockAdjusted marque le stock décrémenté pour cette commande. Une
// reprise après redélivrance lit ce marqueur pour sauter l'étape stock.
func (s *Orders) SetStockAdjusted(ctx context.Context, orderID string) error {
	return s.Session.Query(`UPDATE orders SET stock_adjusted = true WHERE order_id = ?`,
		orderID).WithContext(ctx).Exec()
}
