package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medride/internal/config"
	"medride/internal/handler"
	"medride/internal/infra/db"
	"medride/internal/infra/mongodb"
	"medride/internal/infra/otpstore"
	infraRepo "medride/internal/infra/repository"
	"medride/internal/infra/sms"
	"medride/internal/infra/token"
	"medride/internal/lib/sl"
	"medride/internal/middleware"
	"medride/internal/repository"
	"medride/internal/server"
	auth "medride/internal/usecase/auth_usecase"

	"github.com/redis/go-redis/v9"
)

// 起動時の接続確認の上限
const connectTimeout = 10 * time.Second

type App struct {
	logger  *slog.Logger
	Server  *server.Server
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// 保存先ごとのリポジトリ一式
type storage struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	auditLogs repository.AuditLogRepository
	txm       repository.TransactionManager
	ready     server.ReadinessFunc
	close     func(ctx context.Context) error
}

// 設定に従って保存先・OTPストア・SMS・usecase・HTTPサーバーを組み立てる
func New(ctx context.Context, logger *slog.Logger, cfg config.Config) (*App, error) {
	var sender auth.SMSSender = sms.Disabled{}
	if cfg.Twilio.Enabled() {
		sender = sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromPhone)
	} else {
		logger.Warn("twilio is not configured, otp codes will not be delivered")
	}
	return newApp(ctx, logger, cfg, sender)
}

func newApp(ctx context.Context, logger *slog.Logger, cfg config.Config, sender auth.SMSSender) (*App, error) {
	const op = "app.New"

	a := &App{logger: logger}

	st, err := openStorage(ctx, logger, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closers = append(a.closers, closer{name: "storage", fn: st.close})

	otpStore, err := a.openOTPStore(ctx, cfg)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.JWTIssuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}, nil)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("%s: %w: %w", op, auth.ErrConfiguration, err)
	}

	//usecaseに渡す部品
	clock := auth.SystemClock{}
	idGen := auth.UUIDGenerator{}
	hasher := auth.NewBcryptPasswordHasher(cfg.Auth.BcryptCost)
	verifier := auth.NewBcryptPasswordVerifier()

	registry := auth.NewSessionRegistry(st.sessions, issuer, clock)
	otp := auth.NewOTPChallengeManager(logger, otpStore, sender, clock, cfg.OTPSecret(), cfg.OTP.TTL, cfg.OTP.DispatchTimeout)

	//Usecase生成
	registerUC := auth.NewRegisterUserUsecase(logger, st.users, st.txm, hasher, issuer, registry, idGen, clock)
	loginUC := auth.NewLoginUsecase(logger, st.users, st.txm, hasher, verifier, otp, issuer, registry, idGen, clock)
	refreshUC := auth.NewRefreshUsecase(logger, st.users, st.txm, issuer, registry, idGen, clock)
	logoutUC := auth.NewLogoutUsecase(logger, registry)

	//Handler生成
	authH := handler.NewAuthHandler(logger, registerUC, loginUC, refreshUC, logoutUC)

	a.Server = server.New(logger, cfg.HTTP, server.Deps{
		Auth:      authH,
		Verifier:  issuer,
		AuditLogs: st.auditLogs,
		AuditKey:  []byte(cfg.AuditSecret()),
		Metrics:   middleware.NewMetrics(),
		Ready:     st.ready,
	})

	return a, nil
}

func openStorage(ctx context.Context, logger *slog.Logger, cfg config.DatabaseConfig) (*storage, error) {
	switch cfg.Driver {
	case config.StorageDriverMongo:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		m, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &storage{
			users:     m.Users(),
			sessions:  m.Sessions(),
			auditLogs: m.AuditLogs(),
			txm:       m,
			ready:     m.Ping,
			close:     m.Close,
		}, nil

	default:
		gdb, err := db.Connect(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
		return &storage{
			users:     infraRepo.NewUserGormRepository(gdb),
			sessions:  infraRepo.NewSessionGormRepository(gdb),
			auditLogs: infraRepo.NewAuditLogGormRepository(gdb),
			txm:       infraRepo.NewTxManagerGorm(gdb),
			ready: func(ctx context.Context) error {
				return db.Ping(ctx, gdb)
			},
			close: func(context.Context) error {
				return db.Close(gdb)
			},
		}, nil
	}
}

// redisなら全レプリカで共有、memoryならこのプロセスだけ
func (a *App) openOTPStore(ctx context.Context, cfg config.Config) (repository.OTPStore, error) {
	if cfg.OTP.Store == config.OTPStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: ping: %w", err)
		}

		a.closers = append(a.closers, closer{name: "redis", fn: func(context.Context) error {
			return client.Close()
		}})
		return otpstore.NewRedisStore(client), nil
	}

	store := otpstore.NewMemoryStore()

	//期限切れのチャレンジを掃除する
	janitorCtx, stop := context.WithCancel(context.Background())
	go store.RunJanitor(janitorCtx, cfg.OTP.TTL, time.Now)

	a.closers = append(a.closers, closer{name: "otp janitor", fn: func(context.Context) error {
		stop()
		return nil
	}})
	return store, nil
}

// Runはサーバーが止まるまでブロックする
func (a *App) Run() error {
	return a.Server.Start()
}

// サーバーを止めてから接続を閉じる
func (a *App) Shutdown(ctx context.Context) error {
	const op = "app.Shutdown"

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.close(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// 開いた順と逆に閉じる
func (a *App) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error("failed to close", slog.String("resource", c.name), sl.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
