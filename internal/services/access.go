package services

import (
	"context"
	"errors"
	"fmt"

	"taskhub/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// OwnedBy restricts a task query to the caller's own rows. Admins see every
// row. Ownership lives in the predicate so a miss is indistinguishable from a
// task that does not exist.
func OwnedBy(caller Caller) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if caller.IsAdmin() {
			return db
		}
		return db.Where("tasks.user_id = ?", caller.ID)
	}
}

func Personal(db *gorm.DB) *gorm.DB {
	return db.Where("tasks.group_id IS NULL")
}

func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC")
}

// WithOwnerName preloads the task owner with only id and name.
func WithOwnerName(db *gorm.DB) *gorm.DB {
	return db.Preload("User", func(tx *gorm.DB) *gorm.DB {
		return tx.Select("id", "name")
	})
}

// AcceptedMemberOf restricts a group query to groups where userID holds an
// ACCEPTED membership.
func AcceptedMemberOf(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		members := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.GroupMember{}).
			Select("group_id").
			Where("user_id = ? AND status = ?", userID, models.MemberStatusAccepted)
		return db.Where("id IN (?)", members)
	}
}

// requireGroupAccess returns ErrGroupNotFound when the group does not exist
// and ErrNotGroupMember when the caller has no ACCEPTED membership in it.
func requireGroupAccess(ctx context.Context, db *gorm.DB, groupID uuid.UUID, caller Caller) error {
	var group models.Group
	err := db.WithContext(ctx).Select("id").First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("find group: %w", err)
	}

	var count int64
	err = db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, caller.ID, models.MemberStatusAccepted).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if count == 0 {
		return ErrNotGroupMember
	}
	return nil
}
