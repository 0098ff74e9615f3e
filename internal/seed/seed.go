package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Mailseat Admin"

// EnsureSuperAdmin makes sure a super admin user with email exists. An
// existing user with that address is promoted. It returns the user id.
func EnsureSuperAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, email string, now time.Time) (snowflake.ID, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	normalized, err := organizationdomain.NormalizeEmail(email)
	if err != nil {
		return 0, fmt.Errorf("seed super admin: %w", err)
	}

	var userID snowflake.ID
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user organizationdomain.User
		err := tx.WithContext(ctx).Where("email = ?", normalized).First(&user).Error
		if err == nil {
			userID = user.ID
			if user.IsSuperAdmin {
				return nil
			}
			return tx.WithContext(ctx).
				Model(&organizationdomain.User{}).
				Where("id = ?", user.ID).
				Updates(map[string]any{"is_super_admin": true, "updated_at": now}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		user = organizationdomain.User{
			ID:           node.Generate(),
			Email:        normalized,
			Name:         defaultAdminDisplay,
			IsSuperAdmin: true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
