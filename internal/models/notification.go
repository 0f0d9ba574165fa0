package models

import "time"

type Notification struct {
	ID        string
	ImageID   string
	UserID    string
	Payload   []byte
	IsSent    bool
	CreatedAt time.Time
}
