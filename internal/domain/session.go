package domain

import "time"

type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SeriesID     string    `json:"series_id,omitempty"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedAt    time.Time `json:"created_at"`
}
