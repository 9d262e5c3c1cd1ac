package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ticket status values. The workflow is open -> in_progress -> waiting -> closed,
// but transitions are not restricted beyond what the handlers validate.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusWaiting    = "waiting"
	StatusClosed     = "closed"
)

type Company struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Code        string    `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description string    `json:"description"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Permission struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type Role struct {
	ID                   uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                 string       `gorm:"uniqueIndex;not null" json:"name"`
	IsAssignable         bool         `gorm:"not null;default:false" json:"is_assignable"`
	NotifyOnTicketCreate bool         `gorm:"not null;default:false" json:"notify_on_ticket_create"`
	NotifyOnTicketAssign bool         `gorm:"not null;default:false" json:"notify_on_ticket_assign"`
	Permissions          []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
	Companies            []Company    `gorm:"many2many:role_company" json:"companies,omitempty"`
}

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Department   string    `json:"department"`
	Position     string    `json:"position"`
	ProfilePhoto *string   `json:"profile_photo,omitempty"`
	CompanyID    *uint     `gorm:"index" json:"company_id,omitempty"`
	Company      *Company  `json:"company,omitempty"`
	Roles        []Role    `gorm:"many2many:user_roles" json:"roles,omitempty"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Ticket is soft-deleted so abandoned keys stay visible to the allocator
// and are never handed out again.
type Ticket struct {
	ID          string             `gorm:"type:uuid;primaryKey" json:"id"`
	TicketKey   string             `gorm:"uniqueIndex;not null;size:64" json:"ticket_key"`
	Title       string             `gorm:"not null" json:"title"`
	Description string             `json:"description"`
	Type        string             `gorm:"not null;default:task" json:"type"`
	Status      string             `gorm:"not null;default:open;index" json:"status"`
	Priority    string             `gorm:"not null;default:medium" json:"priority"`
	Severity    string             `gorm:"not null;default:minor" json:"severity"`
	ReporterID  string             `gorm:"type:uuid;not null;index" json:"reporter_id"`
	Reporter    *User              `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`
	AssigneeID  *string            `gorm:"type:uuid;index" json:"assignee_id,omitempty"`
	Assignee    *User              `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	CompanyID   uint               `gorm:"not null;index" json:"company_id"`
	Company     *Company           `json:"company,omitempty"`
	Comments    []TicketComment    `gorm:"foreignKey:TicketID" json:"comments,omitempty"`
	Attachments []TicketAttachment `gorm:"foreignKey:TicketID" json:"attachments,omitempty"`
	CreatedAt   time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	DeletedAt   gorm.DeletedAt     `gorm:"index" json:"-"`
}

func (t *Ticket) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

type TicketComment struct {
	ID          string             `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID    string             `gorm:"type:uuid;not null;index" json:"ticket_id"`
	UserID      string             `gorm:"type:uuid;not null" json:"user_id"`
	User        *User              `json:"user,omitempty"`
	CommentText string             `gorm:"not null" json:"comment_text"`
	Attachments []TicketAttachment `gorm:"foreignKey:CommentID" json:"attachments,omitempty"`
	CreatedAt   time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (c *TicketComment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

type TicketAttachment struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID        string    `gorm:"type:uuid;not null;index" json:"ticket_id"`
	CommentID       *string   `gorm:"type:uuid;index" json:"comment_id,omitempty"`
	FileName        string    `gorm:"not null" json:"file_name"`
	FileStoragePath string    `gorm:"not null" json:"file_storage_path"`
	FileSizeBytes   int64     `gorm:"not null" json:"file_size_bytes"`
	UploadedDate    time.Time `gorm:"autoCreateTime" json:"uploaded_date"`
}

func (a *TicketAttachment) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TicketHistory is an append-only audit trail; rows are never updated and only
// disappear with their ticket.
type TicketHistory struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TicketID      string    `gorm:"type:uuid;not null;index" json:"ticket_id"`
	Ticket        *Ticket   `json:"ticket,omitempty"`
	UserID        *string   `gorm:"type:uuid" json:"user_id,omitempty"`
	User          *User     `json:"user,omitempty"`
	ColumnChanged string    `gorm:"not null" json:"column_changed"`
	OldValue      string    `json:"old_value"`
	NewValue      string    `json:"new_value"`
	ChangedAt     time.Time `gorm:"not null;index" json:"changed_at"`
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	UserID    string     `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
