package models

import "time"

type Notification struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}
