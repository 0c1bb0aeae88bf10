package models

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/ims_backend/utils"
	"gorm.io/gorm"
)

// User is a local operator account. Users never leave the site.
type User struct {
	ID        int      `gorm:"primary_key" json:"id"`
	Username  string   `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Name      string   `gorm:"size:100" json:"name"`
	Role      UserRole `gorm:"size:20;not null" json:"role"`
	Password  string   `gorm:"size:255;not null" json:"-"`
	CreatedAt int64    `gorm:"not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt int64    `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
	DeletedAt *int64   `gorm:"index" json:"deletedAt,omitempty"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required,max=100"`
	Name     string   `json:"name" binding:"max=100"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     UserRole `json:"role" binding:"required"`
}

type Login struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Store) CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, invalidInput("%s", err.Error())
	}
	if !input.Role.IsValid() {
		return nil, invalidInput("unknown role %q", input.Role)
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	var user User
	err = s.Atomic(ctx, func(tx *Tx) error {
		now := tx.Now()
		user = User{
			Username:  input.Username,
			Name:      strings.TrimSpace(input.Name),
			Role:      input.Role,
			Password:  string(hashed),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&user).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return invalidInput("username %q already exists", input.Username)
			}
			return err
		}
		if err := RecordAudit(tx, EntityTypeUser, user.ID, AuditActionCreate, nil); err != nil {
			return err
		}
		tx.Notify(CollectionUsers, user.ID, AuditActionCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate returns the active user matching the credentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ? AND deleted_at IS NULL", strings.ToLower(strings.TrimSpace(username))).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id int) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(EntityTypeUser, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("deleted_at IS NULL").Count(&count).Error
	return count, err
}
