// Package policy decides which task fields a role may write. It holds no state
// and is consulted on every mutation.
package policy

import (
	"fmt"
	"strings"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/models"
)

// memberWritable is the full set of fields a member may send.
var memberWritable = map[models.Field]bool{
	models.FieldNote: true,
}

// AllowedFields returns the subset of requested that role may write. A member
// request touching any field other than note is rejected whole; nothing is dropped.
func AllowedFields(role models.Role, requested []models.Field) ([]models.Field, error) {
	switch role {
	case models.RoleAdmin:
		var unknown []string
		for _, f := range requested {
			if !f.Known() {
				unknown = append(unknown, string(f))
			}
		}
		if len(unknown) > 0 {
			return nil, apperr.New(apperr.InvalidArgument, "unknown fields: "+strings.Join(unknown, ", "), nil)
		}
		return append([]models.Field(nil), requested...), nil
	case models.RoleMember:
		if len(requested) == 0 {
			return nil, apperr.New(apperr.Forbidden, "You can only update the note field", nil)
		}
		for _, f := range requested {
			if !memberWritable[f] {
				return nil, apperr.New(apperr.Forbidden, "You can only update the note field", fmt.Errorf("member requested %q", f))
			}
		}
		return append([]models.Field(nil), requested...), nil
	}
	return nil, apperr.New(apperr.Forbidden, "unknown role", nil)
}

func CanCreate(role models.Role) error {
	if role.IsAdmin() {
		return nil
	}
	return apperr.New(apperr.Forbidden, "Only admins can create tasks", nil)
}

func CanDelete(role models.Role) error {
	if role.IsAdmin() {
		return nil
	}
	return apperr.New(apperr.Forbidden, "Only admins can delete tasks", nil)
}

// CanManageUsers gates the user directory's write operations.
func CanManageUsers(role models.Role) error {
	if role.IsAdmin() {
		return nil
	}
	return apperr.New(apperr.Forbidden, "Only admins can manage users", nil)
}

// CanDeleteUser additionally refuses an admin deleting their own account.
func CanDeleteUser(role models.Role, callerID, targetID string) error {
	if err := CanManageUsers(role); err != nil {
		return err
	}
	if callerID == targetID {
		return apperr.New(apperr.Forbidden, "Cannot delete your own account", nil)
	}
	return nil
}
