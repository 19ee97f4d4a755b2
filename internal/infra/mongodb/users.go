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

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Phone        string    `bson:"phone"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type userStore struct {
	coll *mongo.Collection
	sess *mongo.Session
}

func (s *userStore) Create(ctx context.Context, user *model.User) error {
	const op = "mongodb.users.Create"

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.coll.InsertOne(withSession(ctx, s.sess), userDoc{
		ID:           user.ID,
		Email:        model.NormalizeEmail(user.Email),
		Phone:        user.Phone,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repo.ErrUserAlreadyExists
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *userStore) FindByID(ctx context.Context, userID string) (*model.User, error) {
	return s.findOne(ctx, "mongodb.users.FindByID", bson.D{{Key: "_id", Value: userID}})
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "mongodb.users.FindByEmail", bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

func (s *userStore) findOne(ctx context.Context, op string, filter bson.D) (*model.User, error) {
	var doc userDoc
	err := s.coll.FindOne(withSession(ctx, s.sess), filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repo.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &model.User{
		ID:           doc.ID,
		Email:        doc.Email,
		Phone:        doc.Phone,
		PasswordHash: doc.PasswordHash,
		Role:         model.Role(doc.Role),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
