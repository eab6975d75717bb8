// Package authz decides whether a caller may read or change the schedule of
// a project. Identity is established upstream; a Caller is trusted as given.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshharrison/milestone/internal/store"
)

// ErrForbidden is returned when the caller lacks the required project role.
var ErrForbidden = errors.New("forbidden")

// Caller identifies who is acting and in which organization.
type Caller struct {
	UserID     int64
	OrgID      int64
	SuperAdmin bool
}

// Authorizer checks project-level access.
type Authorizer interface {
	// RequireMember fails unless the caller belongs to the project.
	RequireMember(ctx context.Context, caller Caller, projectID int64) error
	// RequireAdmin fails unless the caller administers the project.
	RequireAdmin(ctx context.Context, caller Caller, projectID int64) error
}

// Members authorizes against the project membership table of a catalogue.
// The project must belong to the caller's organization even for super
// admins; super admins skip the membership lookup.
type Members struct {
	Catalog store.Catalog
}

var _ Authorizer = Members{}

// RequireMember implements Authorizer.
func (m Members) RequireMember(ctx context.Context, caller Caller, projectID int64) error {
	_, err := m.member(ctx, caller, projectID)
	return err
}

// RequireAdmin implements Authorizer.
func (m Members) RequireAdmin(ctx context.Context, caller Caller, projectID int64) error {
	mem, err := m.member(ctx, caller, projectID)
	if err != nil {
		return err
	}
	if mem != nil && mem.Role != store.RoleAdmin {
		return fmt.Errorf("user %d is not an admin of project #%d: %w", caller.UserID, projectID, ErrForbidden)
	}
	return nil
}

// member returns the caller's membership, or nil for a super admin.
func (m Members) member(ctx context.Context, caller Caller, projectID int64) (*store.Member, error) {
	if projectID == 0 {
		return nil, fmt.Errorf("no project: %w", ErrForbidden)
	}
	p, err := m.Catalog.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OrgID != caller.OrgID {
		return nil, fmt.Errorf("project #%d is outside org %d: %w", projectID, caller.OrgID, ErrForbidden)
	}
	if caller.SuperAdmin {
		return nil, nil
	}

	mem, err := m.Catalog.ProjectMember(ctx, projectID, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %d is not a member of project #%d: %w", caller.UserID, projectID, ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("look up membership: %w", err)
	}
	return &mem, nil
}
