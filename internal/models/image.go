package models

import "time"

type Image struct {
	ID            string
	UserID        *string
	URL           string
	OriginalURI   *string
	IsRecommended bool
	IsMaster      bool
	IsPublic      bool
	IsAnalyzed    bool
	IsSynced      bool
	IsBanned      bool
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
