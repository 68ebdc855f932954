package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "PENDING"
	MemberStatusAccepted MemberStatus = "ACCEPTED"
)

type Group struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Members []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
	Tasks   []Task        `json:"tasks,omitempty" gorm:"foreignKey:GroupID"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&g.ID)
}

// GroupMember holds exactly one row per (group, user).
type GroupMember struct {
	ID        uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	GroupID   uuid.UUID    `json:"groupId" gorm:"type:uuid;not null;uniqueIndex:idx_group_member"`
	UserID    uuid.UUID    `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_group_member;index"`
	Role      MemberRole   `json:"role" gorm:"type:varchar(10);not null;default:'MEMBER'"`
	Status    MemberStatus `json:"status" gorm:"type:varchar(10);not null;default:'PENDING'"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	User  *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group *Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (m *GroupMember) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&m.ID)
}

func (m *GroupMember) IsAccepted() bool {
	return m.Status == MemberStatusAccepted
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{&User{}, &Group{}, &GroupMember{}, &Task{}}
}
