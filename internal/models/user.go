package models

import "time"

type User struct {
	ID                   string
	NotificationPlayerID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
