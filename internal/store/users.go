package store

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindAll returns users newest first.
func (r *UserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, apperr.WrapStoreReadError("users", err)
	}
	return users, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return models.User{}, apperr.WrapStoreReadError("user", err)
	}
	return u, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperr.WrapStoreReadError("users", err)
	}
	return users, nil
}

// FindByEmail matches case-insensitively; emails are stored lowercased.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error; err != nil {
		return models.User{}, apperr.WrapStoreReadError("user", err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	u.Email = NormalizeEmail(u.Email)
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return apperr.WrapStoreWriteError("user", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	u.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.User{ID: u.ID}).
		Select("email", "name", "role", "password", "updated_at").
		Updates(u)
	if result.Error != nil {
		return apperr.WrapStoreWriteError("user", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "User not found", nil)
	}
	return nil
}

func (r *UserRepository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return apperr.WrapStoreWriteError("user", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "User not found", nil)
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
