package domain

// PaymentMethod is an admin-configured deposit target shown to users.
type PaymentMethod struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Number string `json:"number"`
}
