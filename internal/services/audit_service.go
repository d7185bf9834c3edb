package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/store"
)

// AuditAction defines the types of actions that can be audited.
type AuditAction string

const (
	ActionRecordRead     AuditAction = "record.read"
	ActionRecordCreate   AuditAction = "record.create"
	ActionRecordUpdate   AuditAction = "record.update"
	ActionRecordDelete   AuditAction = "record.delete"
	ActionUserCreate     AuditAction = "user.create"
	ActionUserDelete     AuditAction = "user.delete"
	ActionUserLogin      AuditAction = "user.login"
	ActionUserLogout     AuditAction = "user.logout"
	ActionPasswordChange AuditAction = "user.master_password_change"
)

// AuditResourceType defines the types of resources that can be audited.
type AuditResourceType string

const (
	ResourceRecord  AuditResourceType = "record"
	ResourceUser    AuditResourceType = "user"
	ResourceSession AuditResourceType = "session"
)

// AuditService handles audit logging.
type AuditService struct {
	store store.Store
}

// NewAuditService creates a new AuditService.
func NewAuditService(st store.Store) *AuditService {
	return &AuditService{store: st}
}

// LogParams contains parameters for creating an audit log.
type LogParams struct {
	UserID       uuid.UUID
	Action       AuditAction
	ResourceType AuditResourceType
	ResourceID   string
	ResourceName string
	IPAddress    string
	Metadata     map[string]any
}

// Log creates a new audit log entry.
func (s *AuditService) Log(ctx context.Context, params LogParams) error {
	entry := &store.AuditEntry{
		UserID:       params.UserID,
		Action:       string(params.Action),
		ResourceType: string(params.ResourceType),
		ResourceID:   params.ResourceID,
		ResourceName: params.ResourceName,
		IPAddress:    params.IPAddress,
		Timestamp:    time.Now().UTC(),
		Metadata:     params.Metadata,
	}

	if err := s.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// LogAsync creates an audit log entry asynchronously.
func (s *AuditService) LogAsync(params LogParams) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Log(ctx, params); err != nil {
			slog.Error("failed to create audit log", "action", params.Action, "error", err)
		}
	}()
}

// ListByUser retrieves the most recent audit logs for a user, newest first.
func (s *AuditService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*store.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := s.store.ListAudit(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
