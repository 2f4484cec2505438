package users

import "time"

// User is the principal record authorization decisions are made for.
// Credentials live with the upstream identity provider.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilters narrows a user listing.
type ListFilters struct {
	Query  string
	Limit  int
	Offset int
}
