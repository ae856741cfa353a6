package pg

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/google/uuid"
)

type AuditRepo struct{ pool *Pool }

func NewAuditRepo(pool *Pool) *AuditRepo { return &AuditRepo{pool: pool} }

// Insert appends one security event. Called only from the audit writer's
// background worker, never from the request path.
func (r *AuditRepo) Insert(ctx context.Context, event domain.AuditEvent) error {
	var metadata *string
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return apperr.Internal("marshal audit metadata", err)
		}
		s := string(encoded)
		metadata = &s
	}

	_, err := r.pool.pool.Exec(ctx,
		`INSERT INTO security_audit_log
		   (id, user_id, event_type, success, ip_address, user_agent, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), event.UserID, string(event.EventType), event.Success,
		event.IPAddress, event.UserAgent, metadata, event.CreatedAt)
	if err != nil {
		return apperr.Internal("insert audit event", err)
	}
	return nil
}
