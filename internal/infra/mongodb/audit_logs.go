package mongodb

import (
	"context"
	"fmt"
	"time"

	"medride/internal/domain/model"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

type auditLogDoc struct {
	ID        string    `bson:"_id"`
	UserID    *string   `bson:"user_id,omitempty"`
	Action    string    `bson:"action"`
	Method    string    `bson:"method,omitempty"`
	Path      string    `bson:"path,omitempty"`
	BodyHash  string    `bson:"body_hash,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

type auditLogStore struct {
	coll *mongo.Collection
	sess *mongo.Session
}

func (s *auditLogStore) Create(ctx context.Context, log model.AuditLog) error {
	_, err := s.coll.InsertOne(withSession(ctx, s.sess), auditLogDoc{
		ID:        log.ID,
		UserID:    log.UserID,
		Action:    string(log.Action),
		Method:    log.Method,
		Path:      log.Path,
		BodyHash:  log.BodyHash,
		CreatedAt: log.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mongodb.audit_logs.Create: %w", err)
	}
	return nil
}
