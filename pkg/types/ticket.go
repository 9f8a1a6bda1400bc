package types

// Ticket is the ticketing service's view of an issued ticket.
type Ticket struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	TrajetID   string  `json:"trajetId"`
	SeatNumber int     `json:"seatNumber,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Status     string  `json:"status,omitempty"`
	QRCode     string  `json:"qrCode,omitempty"` // payload rendered as the boarding QR code
	CreatedAt  string  `json:"createdAt,omitempty"`
	ValidUntil string  `json:"validUntil,omitempty"`
}

// TicketRequest is the body sent to create a ticket. UserID must be a UUID.
type TicketRequest struct {
	UserID     string  `json:"userId"`
	TrajetID   string  `json:"trajetId"`
	SeatNumber int     `json:"seatNumber,omitempty"`
	Price      float64 `json:"price,omitempty"`
}
