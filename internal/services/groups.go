package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taskhub/backend/internal/models"
	"taskhub/backend/internal/notify"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type CreateGroupRequest struct {
	Name             string `json:"name"`
	InvitedUserEmail string `json:"invitedUserEmail"`
}

type GroupCounts struct {
	Members int64 `json:"members"`
	Tasks   int64 `json:"tasks"`
}

type GroupSummary struct {
	models.Group
	Count GroupCounts `json:"_count"`
}

type GroupService interface {
	Create(ctx context.Context, caller Caller, req CreateGroupRequest) (*models.Group, error)
	ListForCaller(ctx context.Context, caller Caller) ([]models.Group, error)
	PendingInvitations(ctx context.Context, caller Caller) ([]models.GroupMember, error)
	AcceptInvitation(ctx context.Context, caller Caller, membershipID uuid.UUID) (*models.GroupMember, error)
	Get(ctx context.Context, caller Caller, groupID uuid.UUID) (*models.Group, error)
	AcceptedGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListAll(ctx context.Context, caller Caller) ([]GroupSummary, error)
}

type GroupServiceImpl struct {
	db        *gorm.DB
	publisher notify.Publisher
	log       *slog.Logger
}

func NewGroupService(db *gorm.DB, publisher notify.Publisher, log *slog.Logger) *GroupServiceImpl {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &GroupServiceImpl{db: db, publisher: publisher, log: log}
}

// Create stores the group, the creator's ACCEPTED admin row and the invitee's
// PENDING row in a single transaction.
func (s *GroupServiceImpl) Create(ctx context.Context, caller Caller, req CreateGroupRequest) (*models.Group, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.InvitedUserEmail)
	if name == "" {
		return nil, validationError("group name is required")
	}
	if email == "" {
		return nil, validationError("invitedUserEmail is required")
	}

	var group models.Group
	var invitee models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Select("id", "name").Where("email = ?", email).First(&invitee).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("find invitee: %w", err)
		}
		if invitee.ID == caller.ID {
			return validationError("cannot invite yourself")
		}

		group = models.Group{
			Name: name,
			Members: []models.GroupMember{
				{UserID: caller.ID, Role: models.MemberRoleAdmin, Status: models.MemberStatusAccepted},
				{UserID: invitee.ID, Role: models.MemberRoleMember, Status: models.MemberStatusPending},
			},
		}
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("group created", "group_id", group.ID, "creator", caller.ID, "invitee", invitee.ID)
	s.publish(ctx, notify.UserChannel(invitee.ID), notify.Event{
		Type:         notify.EventGroupInvitation,
		GroupID:      group.ID.String(),
		GroupName:    group.Name,
		MembershipID: group.Members[1].ID.String(),
		UserID:       caller.ID.String(),
	})
	return &group, nil
}

func (s *GroupServiceImpl) ListForCaller(ctx context.Context, caller Caller) ([]models.Group, error) {
	groups := []models.Group{}
	err := s.db.WithContext(ctx).
		Scopes(AcceptedMemberOf(caller.ID)).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// PendingInvitations returns the caller's PENDING rows with the group and its
// members' names, so the client can show who sent the invite.
func (s *GroupServiceImpl) PendingInvitations(ctx context.Context, caller Caller) ([]models.GroupMember, error) {
	invitations := []models.GroupMember{}
	err := s.db.WithContext(ctx).
		Preload("Group").
		Preload("Group.Members").
		Preload("Group.Members.User", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "name")
		}).
		Where("user_id = ? AND status = ?", caller.ID, models.MemberStatusPending).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// AcceptInvitation moves the caller's own row to ACCEPTED. A row owned by
// someone else is reported as not found and left untouched.
func (s *GroupServiceImpl) AcceptInvitation(ctx context.Context, caller Caller, membershipID uuid.UUID) (*models.GroupMember, error) {
	var member models.GroupMember
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", membershipID, caller.ID).First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		if err != nil {
			return fmt.Errorf("find invitation: %w", err)
		}
		if member.IsAccepted() {
			return nil
		}

		result := tx.Model(&models.GroupMember{}).
			Where("id = ? AND user_id = ? AND status = ?", member.ID, caller.ID, models.MemberStatusPending).
			Update("status", models.MemberStatusAccepted)
		if result.Error != nil {
			return fmt.Errorf("accept invitation: %w", result.Error)
		}
		changed = result.RowsAffected > 0
		member.Status = models.MemberStatusAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info("invitation accepted", "membership_id", member.ID, "group_id", member.GroupID, "user_id", caller.ID)
		s.publish(ctx, notify.GroupChannel(member.GroupID), notify.Event{
			Type:         notify.EventMemberJoined,
			GroupID:      member.GroupID.String(),
			MembershipID: member.ID.String(),
			UserID:       caller.ID.String(),
		})
	}
	return &member, nil
}

func (s *GroupServiceImpl) Get(ctx context.Context, caller Caller, groupID uuid.UUID) (*models.Group, error) {
	if err := requireGroupAccess(ctx, s.db, groupID, caller); err != nil {
		return nil, err
	}

	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

func (s *GroupServiceImpl) AcceptedGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := s.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("user_id = ? AND status = ?", userID, models.MemberStatusAccepted).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return ids, nil
}

type groupCountRow struct {
	GroupID uuid.UUID
	Total   int64
}

// ListAll is the admin view of every group with member and task counts.
func (s *GroupServiceImpl) ListAll(ctx context.Context, caller Caller) ([]GroupSummary, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}

	db := s.db.WithContext(ctx)

	var groups []models.Group
	if err := db.Order("created_at DESC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	var members, tasks []groupCountRow
	if err := db.Model(&models.GroupMember{}).
		Select("group_id, COUNT(*) AS total").
		Group("group_id").
		Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	if err := db.Model(&models.Task{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IS NOT NULL").
		Group("group_id").
		Scan(&tasks).Error; err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	counts := make(map[uuid.UUID]*GroupCounts, len(groups))
	summaries := make([]GroupSummary, len(groups))
	for i := range groups {
		summaries[i] = GroupSummary{Group: groups[i]}
		counts[groups[i].ID] = &summaries[i].Count
	}
	for _, row := range members {
		if c, ok := counts[row.GroupID]; ok {
			c.Members = row.Total
		}
	}
	for _, row := range tasks {
		if c, ok := counts[row.GroupID]; ok {
			c.Tasks = row.Total
		}
	}
	return summaries, nil
}

func (s *GroupServiceImpl) publish(ctx context.Context, channel string, event notify.Event) {
	if err := s.publisher.Publish(ctx, channel, event); err != nil {
		s.log.Warn("notification not delivered", "channel", channel, "type", event.Type, "error", err)
	}
}
