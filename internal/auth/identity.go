package auth

import (
	"errors"
	"net/http"

	"github.com/gofrs/uuid"
)

// Token verification lives in the upstream gateway; by the time a request
// reaches this service the caller's id and role arrive as trusted headers.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var ErrMissingIdentity = errors.New("missing or invalid caller identity")

// Identity is the authenticated caller, passed explicitly into every service
// operation instead of being pulled from ambient request context.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// FromRequest extracts the caller identity set by the gateway.
func FromRequest(r *http.Request) (Identity, error) {
	id, err := uuid.FromString(r.Header.Get(HeaderUserID))
	if err != nil || id == uuid.Nil {
		return Identity{}, ErrMissingIdentity
	}

	role := Role(r.Header.Get(HeaderRole))
	if role != RoleUser && role != RoleAdmin {
		return Identity{}, ErrMissingIdentity
	}

	return Identity{UserID: id, Role: role}, nil
}
