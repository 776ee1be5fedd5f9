package models

// Session is a reserved block of studio time. Only the booking engine creates them.
type Session struct {
	ID        string `json:"id" yaml:"id"`
	Date      string `json:"date" yaml:"date"`             // YYYY-MM-DD
	StartTime string `json:"start_time" yaml:"start_time"` // HH:MM
	EndTime   string `json:"end_time" yaml:"end_time"`     // HH:MM, may be before StartTime (overnight)
	Type      string `json:"type" yaml:"type"`
	Hours     int    `json:"hours" yaml:"hours"`
	Guests    int    `json:"guests" yaml:"guests"`
	Notes     string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status    string `json:"status" yaml:"status"`
}
