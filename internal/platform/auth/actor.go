package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller every scheduling operation runs as.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a Actor) IsPatient() bool { return a.Role == RolePatient }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }

var (
	ErrNoActor        = errors.New("no authenticated actor")
	ErrUnknownRole    = errors.New("actor has no clinic role")
	ErrAmbiguousRoles = errors.New("actor has more than one clinic role")
)

// clinicRole picks the single clinic role out of roles, ignoring roles other
// services define. Repeats of the same role are fine.
func clinicRole(roles []string) (Role, error) {
	var found Role
	for _, r := range roles {
		role := Role(r)
		if !role.Valid() {
			continue
		}
		if found != "" && found != role {
			return "", ErrAmbiguousRoles
		}
		found = role
	}
	if found == "" {
		return "", ErrUnknownRole
	}
	return found, nil
}

// ActorFromContext builds the Actor from the identity stored by JWTMiddleware
// or DevAuthMiddleware. An identity must hold exactly one clinic role.
func ActorFromContext(ctx context.Context) (Actor, error) {
	uid := UserIDFromContext(ctx)
	if uid == "" {
		return Actor{}, ErrNoActor
	}
	id, err := uuid.Parse(uid)
	if err != nil {
		return Actor{}, ErrNoActor
	}
	role, err := clinicRole(RolesFromContext(ctx))
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Role: role}, nil
}

// WithActor stores a as the request identity. Used by background jobs and tests.
func WithActor(ctx context.Context, a Actor) context.Context {
	return withIdentity(ctx, a.ID.String(), []string{string(a.Role)})
}

// RequireActor resolves the actor for a handler, answering 401 when the
// request carries no usable identity.
func RequireActor(c echo.Context) (Actor, error) {
	a, err := ActorFromContext(c.Request().Context())
	if err != nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return a, nil
}
