package models

// Inquiry is a membership request left on the marketing site.
type Inquiry struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// LoginToken is the short-lived handoff the marketing site leaves for the portal.
type LoginToken struct {
	Email      string `json:"email"`
	IssuedAtMs int64  `json:"issued_at_ms"`
}
