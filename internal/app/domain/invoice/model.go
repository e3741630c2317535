package invoice

import "time"

// Invoice records an issued invoice and where its document is stored.
type Invoice struct {
	Number    string    `json:"invoiceNumber"`
	UserID    string    `json:"userId"`
	PlanName  string    `json:"planName"`
	Amount    float64   `json:"amount"`
	ObjectKey string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
