package models

import "time"

// AuditAction enumerates recorded actions.
type AuditAction string

const (
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionRefresh        AuditAction = "REFRESH"
	AuditActionPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditActionCreate         AuditAction = "CREATE"
	AuditActionAmend          AuditAction = "AMEND"
)

// AuditLog is an append-only record of sensitive operations.
type AuditLog struct {
	ID         string      `db:"id" json:"id"`
	UserID     *string     `db:"user_id" json:"user_id,omitempty"`
	Action     AuditAction `db:"action" json:"action"`
	Resource   string      `db:"resource" json:"resource"`
	ResourceID *string     `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte      `db:"new_values" json:"-"`
	IPAddress  string      `db:"ip_address" json:"-"`
	UserAgent  string      `db:"user_agent" json:"-"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
