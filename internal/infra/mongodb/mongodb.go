package mongodb

import (
	"context"
	"fmt"

	repo "medride/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDB実装。トランザクションを使うのでレプリカセット構成が前提。
type Storage struct {
	client    *mongo.Client
	database  *mongo.Database
	users     *mongo.Collection
	sessions  *mongo.Collection
	auditLogs *mongo.Collection
}

// 接続してインデックスを作る
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:    client,
		database:  db,
		users:     db.Collection("users"),
		sessions:  db.Collection("sessions"),
		auditLogs: db.Collection("audit_logs"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// sessions.token_hash unique
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("sessions.token_hash index: %w", err)
	}

	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("sessions.user_id index: %w", err)
	}

	_, err = s.auditLogs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("audit_logs.created_at index: %w", err)
	}

	return nil
}

func (s *Storage) Users() repo.UserRepository         { return &userStore{coll: s.users} }
func (s *Storage) Sessions() repo.SessionRepository   { return &sessionStore{coll: s.sessions} }
func (s *Storage) AuditLogs() repo.AuditLogRepository { return &auditLogStore{coll: s.auditLogs} }

type txRepos struct {
	users     *userStore
	sessions  *sessionStore
	auditLogs *auditLogStore
}

func (r *txRepos) Users() repo.UserRepository         { return r.users }
func (r *txRepos) Sessions() repo.SessionRepository   { return r.sessions }
func (r *txRepos) AuditLogs() repo.AuditLogRepository { return r.auditLogs }

// fnに渡すrepoはtxのセッションに載る
func (s *Storage) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	const op = "mongodb.WithinTx"

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%s: start session: %w", op, err)
	}
	defer sess.EndSession(ctx)

	r := &txRepos{
		users:     &userStore{coll: s.users, sess: sess},
		sessions:  &sessionStore{coll: s.sessions, sess: sess},
		auditLogs: &auditLogStore{coll: s.auditLogs, sess: sess},
	}

	_, err = sess.WithTransaction(ctx, func(context.Context) (any, error) {
		return nil, fn(r)
	})
	return err
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// txの中ならセッションを載せる
func withSession(ctx context.Context, sess *mongo.Session) context.Context {
	if sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, sess)
}
