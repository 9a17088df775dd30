package fulfillment

import (
	"strconv"
	"time"

	"elmstone_back_end/internal/models"
)

// Au-delà de ce poids total, le colis passe en mediumParcel quoi qu'il arrive.
const mediumParcelThresholdGrams = 2000.0

// Le transporteur refuse les références de plus de 40 caractères.
const maxOrderReferenceLength = 40

// Shipment est le résultat du calcul d'expédition. Purement dérivé des
// lignes composées, aucun effet de bord.
type Shipment struct {
	Reference     string
	Subtotal      float64
	WeightGrams   float64
	PackageFormat string
}

// CalculateShipment dérive sous-total, poids et format de colis.
// Deux paliers seulement : smallParcel et mediumParcel, c'est tout ce que
// l'intégration transporteur connaît. Un produit peut forcer mediumParcel
// via son package_type_override.
func CalculateShipment(orderID string, items []models.CompoundLineItem) Shipment {
	var subtotal, weight float64
	format := models.PackageFormatSmall

	for _, item := range items {
		subtotal += item.LineValue()
		weight += item.Product.WeightGrams()
		if item.Product.PackageTypeOverride == models.PackageFormatMedium {
			format = models.PackageFormatMedium
		}
	}

	if weight > mediumParcelThresholdGrams {
		format = models.PackageFormatMedium
	}

	return Shipment{
		Reference:     truncateReference(orderID),
		Subtotal:      subtotal,
		WeightGrams:   weight,
		PackageFormat: format,
	}
}

func truncateReference(orderID string) string {
	if len(orderID) > maxOrderReferenceLength {
		return orderID[:maxOrderReferenceLength]
	}
	return orderID
}

// buildCarrierRequest construit la requête Click & Drop à partir de la
// commande persistée et du calcul d'expédition.
func buildCarrierRequest(order models.Order, items []models.CompoundLineItem, shipment Shipment, now time.Time) models.CarrierOrderRequest {
	contents := make([]models.CarrierContent, 0, len(items))
	for _, item := range items {
		quantity := item.Quantity()
		unitValue := item.LineValue()
		if quantity > 0 {
			unitValue = item.LineValue() / float64(quantity)
		}
		contents = append(contents, models.CarrierContent{
			Name:               item.Product.Name,
			SKU:                strconv.Itoa(item.Product.SKU),
			Quantity:           quantity,
			UnitValue:          unitValue,
			UnitWeightInGrams:  item.Product.WeightGrams(),
			CustomsDescription: item.Product.CustomsDescription,
			CustomsCode:        item.Product.CustomsCode,
		})
	}

	return models.CarrierOrderRequest{
		Items: []models.CarrierOrder{{
			OrderReference: shipment.Reference,
			Recipient: models.CarrierRecipient{
				Address: models.CarrierAddress{
					FullName:     order.Name,
					AddressLine1: order.Street,
					City:         order.City,
					Postcode:     order.PostalCode,
					CountryCode:  order.Country,
				},
				EmailAddress: order.Email,
			},
			OrderDate:           now.UTC().Format(time.RFC3339),
			Subtotal:            shipment.Subtotal,
			ShippingCostCharged: order.DeliveryCost,
			Total:               order.TotalValue,
			Packages: []models.CarrierPackage{{
				WeightInGrams:           shipment.WeightGrams,
				PackageFormatIdentifier: shipment.PackageFormat,
				Contents:                contents,
			}},
		}},
	}
}

