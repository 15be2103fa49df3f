package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/auth"
	"taskboard-api/internal/config"
	"taskboard-api/internal/models"
	"taskboard-api/internal/policy"
	"taskboard-api/internal/store"
)

type NewUser struct {
	Email    string
	Password string
	Name     string
	Role     models.Role
}

// UserChanges carries an admin edit. Nil fields are left as they are.
type UserChanges struct {
	Email    *string
	Name     *string
	Role     *models.Role
	Password *string
}

// UserService is the user directory. Tasks only reference users; accounts are
// managed here by admins.
type UserService struct {
	users *store.UserRepository
	dir   *store.Directory
}

func NewUserService(users *store.UserRepository, dir *store.Directory) *UserService {
	return &UserService{users: users, dir: dir}
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.FindAll(ctx)
}

// RoleOf returns the stored role of a user.
func (s *UserService) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Role, nil
}

func (s *UserService) Create(ctx context.Context, caller Caller, in NewUser) (models.User, error) {
	if err := policy.CanManageUsers(caller.Role); err != nil {
		return models.User{}, err
	}
	email := store.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return models.User{}, apperr.New(apperr.InvalidArgument, "Email and password are required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, apperr.New(apperr.InvalidArgument, "Email is not valid", err)
	}
	if err := s.requireFreeEmail(ctx, email, ""); err != nil {
		return models.User{}, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}

	role := in.Role
	if !role.Valid() {
		role = models.RoleMember
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	u := models.User{Email: email, Password: hash, Name: name, Role: role}
	if err := s.users.Create(ctx, &u); err != nil {
		return models.User{}, err
	}
	slog.InfoContext(ctx, "user created", "user_id", u.ID, "role", u.Role.String(), "actor_id", caller.UserID)
	return u, nil
}

func (s *UserService) Update(ctx context.Context, caller Caller, id string, in UserChanges) (models.User, error) {
	if err := policy.CanManageUsers(caller.Role); err != nil {
		return models.User{}, err
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if in.Email != nil {
		email := store.NormalizeEmail(*in.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return models.User{}, apperr.New(apperr.InvalidArgument, "Email is not valid", err)
		}
		if err := s.requireFreeEmail(ctx, email, id); err != nil {
			return models.User{}, err
		}
		u.Email = email
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return models.User{}, apperr.New(apperr.InvalidArgument, "invalid role", nil)
		}
		u.Role = *in.Role
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return models.User{}, err
		}
		u.Password = hash
	}
	if err := s.users.Update(ctx, &u); err != nil {
		return models.User{}, err
	}
	s.dir.Invalidate(id)
	return u, nil
}

// Delete removes a user account. Tasks assigned to it are left in place.
func (s *UserService) Delete(ctx context.Context, caller Caller, id string) error {
	if err := policy.CanDeleteUser(caller.Role, caller.UserID, id); err != nil {
		return err
	}
	if err := s.users.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.dir.Invalidate(id)
	slog.InfoContext(ctx, "user deleted", "user_id", id, "actor_id", caller.UserID)
	return nil
}

// Authenticate checks email and password. Every mismatch looks the same to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return models.User{}, apperr.New(apperr.Unauthenticated, "Invalid email or password", nil)
		}
		return models.User{}, err
	}
	if !auth.CheckPassword(u.Password, password) {
		return models.User{}, apperr.New(apperr.Unauthenticated, "Invalid email or password", nil)
	}
	return u, nil
}

// EnsureAdmin creates the seed admin account unless one with that email exists.
func (s *UserService) EnsureAdmin(ctx context.Context, seed *config.SeedEnv) error {
	if seed.AdminPassword == "" {
		slog.InfoContext(ctx, "admin seed skipped: no password configured")
		return nil
	}
	_, err := s.users.FindByEmail(ctx, seed.AdminEmail)
	if err == nil {
		return nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return err
	}
	hash, err := hashPassword(seed.AdminPassword)
	if err != nil {
		return err
	}
	u := models.User{Email: seed.AdminEmail, Password: hash, Name: seed.AdminName, Role: models.RoleAdmin}
	if err := s.users.Create(ctx, &u); err != nil {
		return err
	}
	slog.InfoContext(ctx, "admin user seeded", "user_id", u.ID, "email", u.Email)
	return nil
}

func (s *UserService) requireFreeEmail(ctx context.Context, email, selfID string) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing.ID != selfID {
		return apperr.New(apperr.InvalidArgument, "User already exists with this email", nil)
	}
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		return err
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return "", apperr.New(apperr.InvalidArgument, "Password must be at least 6 characters", err)
	}
	if err != nil {
		return "", apperr.New(apperr.StoreFailure, "server error", err)
	}
	return hash, nil
}
