package model

import "time"

// Category is one entry of the closed merchant-category taxonomy. Rules whose
// action category is not an active taxonomy entry are rejected at write time.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	ID          int
	IsActive    bool
}
