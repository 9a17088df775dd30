package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"elmstone_back_end/internal/models"
)

// --- Mocks ---

type mockOrders struct {
	mu            sync.Mutex
	insertedOrder []models.Order
	insertedLines []models.OrderProduct
	dispatched    []string

	insertOrderErr    error
	insertProductsErr error
}

func (m *mockOrders) InsertOrder(ctx context.Context, o models.Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertOrderErr != nil {
		return false, m.insertOrderErr
	}
	for _, existing := range m.insertedOrder {
		if existing.ID == o.ID {
			return false, nil
		}
	}
	m.insertedOrder = append(m.insertedOrder, o)
	return true, nil
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.insertedOrder {
		if m.insertedOrder[i].ID == orderID {
			o := m.insertedOrder[i]
			return &o, nil
		}
	}
	return nil, errors.New("commande introuvable")
}

func (m *mockOrders) InsertOrderProducts(ctx context.Context, products []models.OrderProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertProductsErr != nil {
		return m.insertProductsErr
	}
	// Même sémantique qu'une écriture Cassandra : réécrire la même clé
	// remplace la ligne, sans doublon.
	for _, p := range products {
		replaced := false
		for i := range m.insertedLines {
			if m.insertedLines[i].OrderID == p.OrderID && m.insertedLines[i].SKU == p.SKU {
				m.insertedLines[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			m.insertedLines = append(m.insertedLines, p)
		}
	}
	return nil
}

func (m *mockOrders) SetDispatched(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched = append(m.dispatched, orderID)
	for i := range m.insertedOrder {
		if m.insertedOrder[i].ID == orderID {
			m.insertedOrder[i].Dispatched = true
		}
	}
	return nil
}

func (m *mockOrders) SetStockAdjusted(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.insertedOrder {
		if m.insertedOrder[i].ID == orderID {
			m.insertedOrder[i].StockAdjusted = true
		}
	}
	return nil
}

type memProducts struct {
	mu       sync.Mutex
	products map[int]models.Product
	stock    map[int]int
}

func (m *memProducts) ProductsBySKU(ctx context.Context, skus []int) (map[int]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[int]models.Product)
	for _, sku := range skus {
		if p, ok := m.products[sku]; ok {
			result[sku] = p
		}
	}
	return result, nil
}

func (m *memProducts) StockBySKU(ctx context.Context, skus []int) (map[int]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[int]int)
	for _, sku := range skus {
		if s, ok := m.stock[sku]; ok {
			result[sku] = s
		}
	}
	return result, nil
}

func (m *memProducts) CompareAndSetStock(ctx context.Context, sku, expected, next int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stock[sku] != expected {
		return false, nil
	}
	m.stock[sku] = next
	return true, nil
}

type memEvents struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemEvents() *memEvents { return &memEvents{claimed: make(map[string]bool)} }

func (m *memEvents) Claim(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[eventID] {
		return false, nil
	}
	m.claimed[eventID] = true
	return true, nil
}

func (m *memEvents) Release(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, eventID)
	return nil
}

type mockLister struct {
	items []*stripe.LineItem
	err   error
}

func (m *mockLister) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	return m.items, m.err
}

type mockCarrier struct {
	mu    sync.Mutex
	calls int
	resp  *models.CarrierOrderResponse
	err   error
}

func (m *mockCarrier) SubmitOrder(ctx context.Context, req models.CarrierOrderRequest) (*models.CarrierOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &models.CarrierOrderResponse{SuccessCount: 1}, nil
}

type mockAnalytics struct {
	err error
}

func (m *mockAnalytics) SendPurchase(ctx context.Context, clientID, sessionID string, order models.Order, items []models.CompoundLineItem) error {
	return m.err
}

// --- Fixtures ---

func lineItem(sku string, quantity, amountTotal int64) *stripe.LineItem {
	return &stripe.LineItem{
		ID:          "li_" + sku,
		Quantity:    quantity,
		AmountTotal: amountTotal,
		Price: &stripe.Price{
			Product: &stripe.Product{Metadata: map[string]string{"sku": sku}},
		},
	}
}

func validSession() *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:          "cs_test_abc",
		AmountTotal: 3448,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: "client@example.co.uk",
			Name:  "Ada Byron",
		},
		CollectedInformation: &stripe.CheckoutSessionCollectedInformation{
			ShippingDetails: &stripe.CheckoutSessionCollectedInformationShippingDetails{
				Name: "Ada Byron",
				Address: &stripe.Address{
					Line1:      "12 Marsh Lane",
					City:       "Leeds",
					PostalCode: "LS1 4AB",
					Country:    "GB",
				},
			},
		},
		TotalDetails: &stripe.CheckoutSessionTotalDetails{AmountShipping: 350},
		Metadata:     map[string]string{"gaClientID": "GA1.2.3", "gaSessionID": "s_42"},
	}
}

func catalogue() *memProducts {
	weight := 700.0
	return &memProducts{
		products: map[int]models.Product{
			101: {SKU: 101, Name: "Vase", Category: "Céramique", Weight: &weight, Stock: 10},
		},
		stock: map[int]int{101: 10},
	}
}

func newTestPipeline(orders *mockOrders, products *memProducts, events *memEvents, carrier *mockCarrier) *Pipeline {
	return &Pipeline{
		Orders:     orders,
		Products:   products,
		Events:     events,
		Stripe:     &mockLister{items: []*stripe.LineItem{lineItem("101", 2, 2398)}},
		Carrier:    carrier,
		Production: true,
	}
}

// --- Tests ---

func TestRunCreatesOrderAndLines(t *testing.T) {
	orders := &mockOrders{}
	products := catalogue()
	carrier := &mockCarrier{}
	p := newTestPipeline(orders, products, newMemEvents(), carrier)

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)
	require.NotNil(t, out.Order)

	// Exactement une commande, exactement N lignes.
	assert.Len(t, orders.insertedOrder, 1)
	assert.Len(t, orders.insertedLines, 1)
	assert.Equal(t, "cs_test_abc", orders.insertedOrder[0].ID)
	assert.Equal(t, 34.48, orders.insertedOrder[0].TotalValue)
	assert.Equal(t, 3.50, orders.insertedOrder[0].DeliveryCost)
	assert.Equal(t, 101, orders.insertedLines[0].SKU)
	assert.Equal(t, 2, orders.insertedLines[0].Quantity)
	assert.InDelta(t, 23.98, orders.insertedLines[0].LineValue, 0.001)

	// Stock 10 − 2 = 8, commande marquée expédiée.
	assert.Equal(t, 8, products.stock[101])
	assert.Equal(t, []string{"cs_test_abc"}, orders.dispatched)
	assert.Empty(t, out.PartialFailures)
}

func TestRunReplayedEventDoesNothing(t *testing.T) {
	orders := &mockOrders{}
	products := catalogue()
	events := newMemEvents()
	p := newTestPipeline(orders, products, events, &mockCarrier{})

	_, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)

	// Pas de deuxième commande, pas de double décrément.
	assert.Len(t, orders.insertedOrder, 1)
	assert.Equal(t, 8, products.stock[101])
}

func TestRunMissingDetailsRejectsBeforeAnyWrite(t *testing.T) {
	orders := &mockOrders{}
	events := newMemEvents()
	p := newTestPipeline(orders, catalogue(), events, &mockCarrier{})

	session := validSession()
	session.CustomerDetails = nil

	_, err := p.Run(context.Background(), "evt_1", session)
	assert.ErrorIs(t, err, ErrMissingDetails)
	assert.Empty(t, orders.insertedOrder)

	// L'événement est libéré : la redélivrance Stripe peut retenter.
	assert.False(t, events.claimed["evt_1"])
}

func TestRunUnknownProductIsFatal(t *testing.T) {
	orders := &mockOrders{}
	p := newTestPipeline(orders, catalogue(), newMemEvents(), &mockCarrier{})
	p.Stripe = &mockLister{items: []*stripe.LineItem{lineItem("999", 1, 1000)}}

	_, err := p.Run(context.Background(), "evt_1", validSession())
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.Empty(t, orders.insertedLines)
}

func TestRunMissingPriceIsFatal(t *testing.T) {
	p := newTestPipeline(&mockOrders{}, catalogue(), newMemEvents(), &mockCarrier{})
	noPrice := &stripe.LineItem{ID: "li_x", Quantity: 1, AmountTotal: 1000}
	p.Stripe = &mockLister{items: []*stripe.LineItem{noPrice}}

	_, err := p.Run(context.Background(), "evt_1", validSession())
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestRunOrderProductsFailureIsSurfacedNotFatal(t *testing.T) {
	orders := &mockOrders{insertProductsErr: errors.New("scylla indisponible")}
	products := catalogue()
	p := newTestPipeline(orders, products, newMemEvents(), &mockCarrier{})

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)

	// L'échec remonte dans l'Outcome mais la chaîne continue : stock
	// décrémenté, transporteur appelé.
	require.Len(t, out.PartialFailures, 1)
	assert.Equal(t, "order_products", out.PartialFailures[0].Step)
	assert.Equal(t, 8, products.stock[101])
	assert.Equal(t, []string{"cs_test_abc"}, orders.dispatched)
}

func TestRunCarrierValidationErrorsSurfaceAndSkipDispatch(t *testing.T) {
	orders := &mockOrders{}
	carrier := &mockCarrier{resp: &models.CarrierOrderResponse{
		ErrorsCount: 1,
		FailedOrders: []models.CarrierFailedOrder{{
			Errors: []models.CarrierFieldError{{ErrorCode: "E1", ErrorMessage: "postcode invalide"}},
		}},
	}}
	p := newTestPipeline(orders, catalogue(), newMemEvents(), carrier)

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)

	require.Len(t, out.CarrierErrors, 1)
	assert.Equal(t, "postcode invalide", out.CarrierErrors[0].ErrorMessage)
	assert.Empty(t, orders.dispatched)
}

func TestRunCarrierNetworkFailureReleasesEvent(t *testing.T) {
	events := newMemEvents()
	carrier := &mockCarrier{err: errors.New("timeout")}
	p := newTestPipeline(&mockOrders{}, catalogue(), events, carrier)

	_, err := p.Run(context.Background(), "evt_1", validSession())
	require.Error(t, err)
	assert.False(t, events.claimed["evt_1"])
}

// Un échec transporteur après l'insertion de la commande libère la
// réservation ; la redélivrance doit alors REPRENDRE la commande existante
// et finir l'expédition, sans deuxième commande ni double décrément.
func TestRunCarrierFailureThenRedeliveryCompletes(t *testing.T) {
	orders := &mockOrders{}
	products := catalogue()
	events := newMemEvents()
	carrier := &mockCarrier{err: errors.New("timeout")}
	p := newTestPipeline(orders, products, events, carrier)

	_, err := p.Run(context.Background(), "evt_1", validSession())
	require.Error(t, err)
	require.Len(t, orders.insertedOrder, 1)
	// Le stock a déjà été décrémenté au premier passage.
	assert.Equal(t, 8, products.stock[101])
	assert.False(t, events.claimed["evt_1"])

	// Redélivrance Stripe : le transporteur est revenu.
	carrier.mu.Lock()
	carrier.err = nil
	carrier.mu.Unlock()

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)
	require.NotNil(t, out.Order)
	assert.False(t, out.AlreadyProcessed)

	// Une seule commande, une seule ligne, pas de double décrément, et la
	// commande finit bien expédiée.
	assert.Len(t, orders.insertedOrder, 1)
	assert.Len(t, orders.insertedLines, 1)
	assert.Equal(t, 8, products.stock[101])
	assert.Equal(t, []string{"cs_test_abc"}, orders.dispatched)
	assert.Empty(t, out.PartialFailures)
}

// Si la commande reprise est déjà marquée expédiée, la reprise s'arrête là.
func TestRunResumedDispatchedOrderDoesNothing(t *testing.T) {
	orders := &mockOrders{}
	products := catalogue()
	events := newMemEvents()
	carrier := &mockCarrier{}
	p := newTestPipeline(orders, products, events, carrier)

	_, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)
	require.Equal(t, 1, carrier.calls)

	// Même session sous un autre identifiant d'événement : la dédup par
	// événement ne joue pas, c'est la commande expédiée qui bloque.
	out, err := p.Run(context.Background(), "evt_2", validSession())
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)
	assert.Equal(t, 1, carrier.calls)
	assert.Equal(t, 8, products.stock[101])
}

func TestRunAnalyticsFailureDoesNotAffectOutcome(t *testing.T) {
	orders := &mockOrders{}
	p := newTestPipeline(orders, catalogue(), newMemEvents(), &mockCarrier{})
	p.Analytics = &mockAnalytics{err: errors.New("GA4 injoignable")}

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)
	assert.Empty(t, out.PartialFailures)
	assert.Empty(t, out.CarrierErrors)
	assert.Len(t, orders.insertedOrder, 1)
}

func TestRunNonProductionSkipsStockAndCarrier(t *testing.T) {
	orders := &mockOrders{}
	products := catalogue()
	carrier := &mockCarrier{}
	p := newTestPipeline(orders, products, newMemEvents(), carrier)
	p.Production = false

	out, err := p.Run(context.Background(), "evt_1", validSession())
	require.NoError(t, err)

	assert.Len(t, orders.insertedOrder, 1)
	assert.Equal(t, 10, products.stock[101])
	assert.Equal(t, 0, carrier.calls)
	assert.Nil(t, out.Shipment)
}
