package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elmstone_back_end/internal/models"
)

func carrierRequest() models.CarrierOrderRequest {
	return models.CarrierOrderRequest{
		Items: []models.CarrierOrder{{
			OrderReference: "cs_test_abc",
			Recipient: models.CarrierRecipient{
				Address: models.CarrierAddress{
					FullName:     "Ada Byron",
					AddressLine1: "12 Marsh Lane",
					City:         "Leeds",
					Postcode:     "LS1 4AB",
					CountryCode:  "GB",
				},
				EmailAddress: "client@example.co.uk",
			},
			Subtotal: 23.98,
			Total:    27.48,
			Packages: []models.CarrierPackage{{
				WeightInGrams:           700,
				PackageFormatIdentifier: models.PackageFormatSmall,
			}},
		}},
	}
}

func TestSubmitOrderMissingKeyShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	rm := &RoyalMail{APIKey: "", BaseURL: server.URL, HTTP: server.Client()}
	_, err := rm.SubmitOrder(context.Background(), carrierRequest())

	assert.ErrorIs(t, err, ErrCarrierNotConfigured)
	assert.False(t, called, "aucun appel réseau ne doit partir sans clé")
}

func TestSubmitOrderSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer rm_test_key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body models.CarrierOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, "cs_test_abc", body.Items[0].OrderReference)

		json.NewEncoder(w).Encode(models.CarrierOrderResponse{
			SuccessCount: 1,
			CreatedOrders: []models.CarrierCreatedOrder{
				{OrderIdentifier: 42, OrderReference: "cs_test_abc"},
			},
		})
	}))
	defer server.Close()

	rm := &RoyalMail{APIKey: "rm_test_key", BaseURL: server.URL, HTTP: server.Client()}
	resp, err := rm.SubmitOrder(context.Background(), carrierRequest())

	require.NoError(t, err)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, 0, resp.ErrorsCount)
}

func TestSubmitOrderValidationErrorsAreNotGoErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.CarrierOrderResponse{
			ErrorsCount: 1,
			FailedOrders: []models.CarrierFailedOrder{{
				Errors: []models.CarrierFieldError{
					{ErrorCode: "E1403", ErrorMessage: "postcode invalide"},
				},
			}},
		})
	}))
	defer server.Close()

	rm := &RoyalMail{APIKey: "rm_test_key", BaseURL: server.URL, HTTP: server.Client()}
	resp, err := rm.SubmitOrder(context.Background(), carrierRequest())

	require.NoError(t, err)
	require.Equal(t, 1, resp.ErrorsCount)
	errs := resp.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "postcode invalide", errs[0].ErrorMessage)
}

func TestSubmitOrderHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	rm := &RoyalMail{APIKey: "rm_mauvaise_cle", BaseURL: server.URL, HTTP: server.Client()}
	_, err := rm.SubmitOrder(context.Background(), carrierRequest())
	assert.Error(t, err)
}

func TestSubmitOrderContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	rm := &RoyalMail{APIKey: "rm_test_key", BaseURL: server.URL, HTTP: server.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rm.SubmitOrder(ctx, carrierRequest())
	assert.Error(t, err)
}
