package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/notify"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/token"
	"storefront/internal/middleware"
	"storefront/internal/server"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProd() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := newLogger(cfg)

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.WithError(err).Fatal("failed to get sql.DB")
	}

	//Redis（ワンタイムコード）
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.WithError(err).Fatal("failed to connect redis")
	}
	cancelPing()

	//通知。NSQが無ければログに出すだけ
	var inner usecase.Notifier = notify.NewLogSender(log)
	var nsqSender *notify.NSQSender
	if cfg.NSQAddr != "" {
		nsqSender, err = notify.NewNSQSender(cfg.NSQAddr, cfg.NSQTopic)
		if err != nil {
			log.WithError(err).Fatal("failed to connect nsq")
		}
		inner = nsqSender
	}
	notifier := notify.NewAsync(inner, log, 5*time.Second)

	tokens, err := token.NewService(token.Options{
		AdminSecret:    cfg.AdminJWTSecret,
		AdminTTL:       cfg.AdminTokenTTL,
		CustomerSecret: cfg.CustomerJWTSecret,
		CustomerTTL:    cfg.CustomerTokenTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to init token service")
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	adminRepo := infraRepo.NewAdminGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	otpRepo := infraRepo.NewOtpRedisRepository(rdb)

	retry := db.DefaultRetryOptions()
	retry.MaxRetries = cfg.TxMaxRetries
	txm := infraRepo.NewTxManagerGorm(gormDB, retry)

	clock := usecase.SystemClock{}

	//Usecase生成
	authUC := usecase.NewAuthUsecase(usecase.AuthDeps{
		Otps:           otpRepo,
		Users:          userRepo,
		Admins:         adminRepo,
		Tokens:         tokens,
		Notifier:       notifier,
		Hasher:         usecase.BcryptHasher{},
		Validator:      validator.NewAuthValidator(),
		Clock:          clock,
		Log:            log,
		OtpTTL:         cfg.OTPTTL,
		OtpMaxAttempts: cfg.OTPMaxAttempts,
	})
	accountUC := usecase.NewAccountUsecase(txm)
	productUC := usecase.NewProductUsecase(productRepo, txm, clock)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txm, notifier, clock, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, notifier, clock, log)
	mutationUC := usecase.NewMutationUsecase(productRepo, productUC, adminOrderUC, cfg.CoalesceWindow, log)
	auditUC := usecase.NewAuditUsecase(txm)

	if cfg.AdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := authUC.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			cancel()
			log.WithError(err).Fatal("failed to ensure admin")
		}
		cancel()
	}

	//Handler生成
	guards := handler.Guards{
		Admin: []echo.MiddlewareFunc{middleware.AdminBearer(tokens)},
		Customer: []echo.MiddlewareFunc{
			middleware.CustomerSession(tokens, middleware.SessionCookieName),
			middleware.CustomerExistsGuard(userRepo),
		},
	}
	handlers := server.Handlers{
		Auth:          handler.NewAuthHandler(authUC, accountUC, handler.CookieConfig{Name: middleware.SessionCookieName, Secure: cfg.CookieSecure}),
		Products:      handler.NewProductHandler(productUC),
		AdminProducts: handler.NewAdminProductHandler(productUC, mutationUC),
		Cart:          handler.NewCartHandler(cartUC),
		Orders:        handler.NewOrderHandler(orderUC),
		AdminOrders:   handler.NewAdminOrderHandler(adminOrderUC, mutationUC, auditUC),
	}

	e := server.New(log)
	server.RegisterRoutes(e, handlers, guards,
		server.HealthCheck{Name: "postgres", Check: sqlDB.PingContext},
		server.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	//後片付けは登録順。HTTPを止めてから、溜まった編集と通知を書き切る
	shutdown := server.NewShutdownManager(log)
	shutdown.Register("mutations", mutationUC.Close)
	shutdown.Register("notifications", notifier.Wait)
	if nsqSender != nil {
		shutdown.Register("nsq", func(context.Context) error {
			nsqSender.Stop()
			return nil
		})
	}
	shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	shutdown.Register("postgres", func(context.Context) error { return sqlDB.Close() })

	//Server起動
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewGracefulServer(e, log, ":"+cfg.Port)
	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Error("http server stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdown.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown finished with errors")
	}
}
