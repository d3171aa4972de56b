package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role partitions API keys into the three caller kinds the marketplace
// distinguishes. Admins bypass vendor ownership checks.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// ErrUnauthorized is returned when no active API key matches the presented
// credential.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity data for a validated API key. SubjectID is
// the customer or vendor the key acts for; empty for admin keys.
type APIKeyInfo struct {
	ID        string
	KeyHash   string
	Name      string
	Role      Role
	SubjectID string
}

// Identity is the resolved caller identity carried in the request context.
type Identity struct {
	Role      Role
	SubjectID string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
