package models

// Guest is a non-member invitee. Session references Session.ID by value only.
type Guest struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Phone   string `json:"phone" yaml:"phone"`
	Session string `json:"session" yaml:"session"`
}
