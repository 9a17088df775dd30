package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"elmstone_back_end/internal/models"
)

func TestCompoundLineItemsPreservesStripeOrder(t *testing.T) {
	w := 100.0
	products := &memProducts{
		products: map[int]models.Product{
			101: {SKU: 101, Name: "Vase", Weight: &w},
			102: {SKU: 102, Name: "Bol", Weight: &w},
		},
		stock: map[int]int{101: 5, 102: 5},
	}
	p := &Pipeline{
		Products: products,
		Stripe: &mockLister{items: []*stripe.LineItem{
			lineItem("102", 1, 899),
			lineItem("101", 2, 2398),
		}},
	}

	items, err := p.compoundLineItems(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 102, items[0].Product.SKU)
	assert.Equal(t, 101, items[1].Product.SKU)
}

func TestCompoundLineItemsMissingSKUMetadata(t *testing.T) {
	noSKU := &stripe.LineItem{
		ID:       "li_1",
		Quantity: 1,
		Price:    &stripe.Price{Product: &stripe.Product{Metadata: map[string]string{}}},
	}
	p := &Pipeline{
		Products: &memProducts{products: map[int]models.Product{}},
		Stripe:   &mockLister{items: []*stripe.LineItem{noSKU}},
	}

	_, err := p.compoundLineItems(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrMissingSKU)
}

func TestCompoundLineItemsNonNumericSKU(t *testing.T) {
	badSKU := &stripe.LineItem{
		ID:       "li_1",
		Quantity: 1,
		Price:    &stripe.Price{Product: &stripe.Product{Metadata: map[string]string{"sku": "abc"}}},
	}
	p := &Pipeline{
		Products: &memProducts{products: map[int]models.Product{}},
		Stripe:   &mockLister{items: []*stripe.LineItem{badSKU}},
	}

	_, err := p.compoundLineItems(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrMissingSKU)
}

func TestCompoundLineItemsNoPartialResults(t *testing.T) {
	w := 100.0
	products := &memProducts{
		products: map[int]models.Product{101: {SKU: 101, Weight: &w}},
	}
	p := &Pipeline{
		Products: products,
		Stripe: &mockLister{items: []*stripe.LineItem{
			lineItem("101", 1, 1000),
			lineItem("999", 1, 1000), // absent du catalogue
		}},
	}

	items, err := p.compoundLineItems(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrUnknownProduct)
	assert.Nil(t, items)
}
