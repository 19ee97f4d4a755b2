package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medride/internal/domain/model"
	repo "medride/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type sessionDoc struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	TokenHash string     `bson:"token_hash"`
	ExpiresAt time.Time  `bson:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
}

type sessionStore struct {
	coll *mongo.Collection
	sess *mongo.Session
}

func (s *sessionStore) Create(ctx context.Context, session *model.Session) error {
	const op = "mongodb.sessions.Create"

	_, err := s.coll.InsertOne(withSession(ctx, s.sess), sessionDoc{
		ID:        session.ID,
		UserID:    session.UserID,
		TokenHash: session.TokenHash,
		ExpiresAt: session.ExpiresAt,
		RevokedAt: session.RevokedAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *sessionStore) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	const op = "mongodb.sessions.FindByID"

	var doc sessionDoc
	err := s.coll.FindOne(withSession(ctx, s.sess), bson.D{{Key: "_id", Value: sessionID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &model.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		TokenHash: doc.TokenHash,
		ExpiresAt: doc.ExpiresAt,
		RevokedAt: doc.RevokedAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// revoked_atが無い(null)ドキュメントだけ更新する
func (s *sessionStore) Revoke(ctx context.Context, sessionID string, revokedAt time.Time) (bool, error) {
	const op = "mongodb.sessions.Revoke"

	res, err := s.coll.UpdateOne(withSession(ctx, s.sess),
		bson.D{
			{Key: "_id", Value: sessionID},
			{Key: "revoked_at", Value: nil},
		},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "revoked_at", Value: revokedAt}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.ModifiedCount == 1, nil
}
