// Package identity defines the normalized authenticated-identity object
// produced by every verification path.
package identity

import "github.com/google/uuid"

type Identity struct {
	UserID   uuid.UUID
	Email    string
	Scopes   []string
	SourceIP string
}
