package models

import "time"

// Memory is a note the agent keeps across runs and sees in its prompt.
type Memory struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}
