package repository

import (
	"context"

	repo "medride/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	users     repo.UserRepository
	sessions  repo.SessionRepository
	auditLogs repo.AuditLogRepository
}

func (r *txReposGorm) Users() repo.UserRepository         { return r.users }
func (r *txReposGorm) Sessions() repo.SessionRepository   { return r.sessions }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			users:     NewUserGormRepository(tx),
			sessions:  NewSessionGormRepository(tx),
			auditLogs: NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
