package models

// Types du contrat Click & Drop (Royal Mail). Le schéma appartient au
// transporteur, on le reproduit tel quel.

type CarrierAddress struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	Postcode     string `json:"postcode"`
	CountryCode  string `json:"countryCode"`
}

type CarrierRecipient struct {
	Address      CarrierAddress `json:"address"`
	EmailAddress string         `json:"emailAddress"`
}

type CarrierContent struct {
	Name               string  `json:"name"`
	SKU                string  `json:"SKU"`
	Quantity           int     `json:"quantity"`
	UnitValue          float64 `json:"unitValue"`
	UnitWeightInGrams  float64 `json:"unitWeightInGrams"`
	CustomsDescription string  `json:"customsDescription"`
	CustomsCode        string  `json:"customsCode"`
}

type CarrierPackage struct {
	WeightInGrams           float64          `json:"weightInGrams"`
	PackageFormatIdentifier string           `json:"packageFormatIdentifier"`
	Contents                []CarrierContent `json:"contents"`
}

type CarrierOrder struct {
	OrderReference      string           `json:"orderReference"`
	Recipient           CarrierRecipient `json:"recipient"`
	OrderDate           string           `json:"orderDate"`
	Subtotal            float64          `json:"subtotal"`
	ShippingCostCharged float64          `json:"shippingCostCharged"`
	Total               float64          `json:"total"`
	Packages            []CarrierPackage `json:"packages"`
}

type CarrierOrderRequest struct {
	Items []CarrierOrder `json:"items"`
}

type CarrierFieldError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Fields       string `json:"fields,omitempty"`
}

type CarrierFailedOrder struct {
	Errors []CarrierFieldError `json:"errors"`
}

type CarrierCreatedOrder struct {
	OrderIdentifier int    `json:"orderIdentifier"`
	OrderReference  string `json:"orderReference"`
}

type CarrierOrderResponse struct {
	SuccessCount  int                   `json:"successCount"`
	ErrorsCount   int                   `json:"errorsCount"`
	CreatedOrders []CarrierCreatedOrder `json:"createdOrders"`
	FailedOrders  []CarrierFailedOrder  `json:"failedOrders"`
}

// Errors aplatit les erreurs de validation remontées par le transporteur.
func (r CarrierOrderResponse) Errors() []CarrierFieldError {
	var all []CarrierFieldError
	for _, f := range r.FailedOrders {
		all = append(all, f.Errors...)
	}
	return all
}
