package models

// CalendarCell is one day of the booking calendar grid. Recomputed on every render.
type CalendarCell struct {
	Date       string `json:"date"`
	Day        int    `json:"day"`
	OtherMonth bool   `json:"other_month"`
	Disabled   bool   `json:"disabled"`
	Today      bool   `json:"today"`
	Booked     bool   `json:"booked"`
	Selected   bool   `json:"selected"`
}
