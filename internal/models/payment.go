package models

// Customer is the payment provider's customer profile.
type Customer struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Card is a card on file. Only non-sensitive fields are kept.
type Card struct {
	ID         string `json:"id"`
	CardBrand  string `json:"card_brand"`
	Last4      string `json:"last_4"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CustomerID string `json:"customer_id,omitempty"`
}

// CustomerRequest carries the fields used to create a provider customer.
type CustomerRequest struct {
	GivenName    string
	FamilyName   string
	EmailAddress string
	PhoneNumber  string
	ReferenceID  string
	Note         string
}
