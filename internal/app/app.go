// Package app builds the reconciler object graph from a loaded config. The
// api and reconciler binaries share it.
package app

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/bankapi"
	"github.com/nimasrn/bank-reconciler/internal/config"
	"github.com/nimasrn/bank-reconciler/internal/events"
	"github.com/nimasrn/bank-reconciler/internal/matching"
	"github.com/nimasrn/bank-reconciler/internal/poller"
	"github.com/nimasrn/bank-reconciler/internal/reconcile"
	"github.com/nimasrn/bank-reconciler/internal/repository"
	"github.com/nimasrn/bank-reconciler/internal/services"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/pg"
	"github.com/nimasrn/bank-reconciler/pkg/prom"
	"github.com/nimasrn/bank-reconciler/pkg/redis"
)

type App struct {
	Config *config.Config
	DB     *pg.DB
	Redis  redis.RedisAdapter

	Transactions *repository.BankTransactionRepository
	Orders       *repository.OrderRepository
	Publisher    *events.Publisher
	Bank         *bankapi.Client

	Engine     *matching.Engine
	Committer  *reconcile.Committer
	Reconciler *reconcile.Reconciler
	Worker     *reconcile.Worker

	TransactionService    *services.TransactionService
	IngestService         *services.IngestService
	ReconciliationService *services.ReconciliationService
	HealthService         *services.HealthService
}

func ReadConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func WriteConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

// Connect opens postgres and redis and wires everything on top of them.
func Connect(c *config.Config) (*App, error) {
	db, err := pg.CreateReadWrite(ReadConfig(c), WriteConfig(c), c.AppEnv == "dev")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisAdap, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a, err := New(c, db, redisAdap)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// New wires the components over already opened stores.
func New(c *config.Config, db *pg.DB, redisAdap redis.RedisAdapter) (*App, error) {
	a := &App{
		Config:       c,
		DB:           db,
		Redis:        redisAdap,
		Transactions: repository.NewBankTransactionRepository(db),
		Orders:       repository.NewOrderRepository(db),
	}

	publisher, err := events.NewPublisher(redisAdap, events.Config{Stream: c.EventsStream, MaxLen: c.EventsStreamMax})
	if err != nil {
		return nil, err
	}
	a.Publisher = publisher

	a.Bank, err = bankapi.NewClient(bankConfig(c))
	if err != nil {
		return nil, fmt.Errorf("bank client: %w", err)
	}

	a.Engine = matching.NewEngine(matching.Config{
		StrictReference: c.ReconcileStrictReference,
		PaymentMethods:  c.PaymentMethods(),
	})
	a.Committer = reconcile.NewCommitter(db, a.Transactions, a.Orders, publisher)
	a.Reconciler = reconcile.NewReconciler(a.Transactions, a.Orders, a.Engine, a.Committer)

	var lock *reconcile.RunLock
	if c.ReconcileLockEnabled {
		lock = reconcile.NewRunLock(redisAdap, c.ReconcileLockKey, c.ReconcileLockTTL)
	}
	a.Worker = reconcile.NewWorker(a.Reconciler, reconcile.WorkerConfig{
		Interval:   c.ReconcileInterval,
		Enabled:    c.ReconcileEnabled,
		RunTimeout: c.ReconcileInterval,
	}, lock)

	a.TransactionService = services.NewTransactionService(a.Transactions)
	a.IngestService = services.NewIngestService(a.Bank, a.Transactions, a.Reconciler, services.IngestConfig{
		CurrencyExponent: c.CurrencyExponent,
	})
	a.ReconciliationService = services.NewReconciliationService(a.Transactions, a.Orders, a.Engine, a.Committer, a.Worker)
	a.HealthService = services.NewHealthService(2*time.Second).
		Register("postgres", db).
		Register("redis", redisAdap)
	return a, nil
}

// Poller returns the bank poller, or nil when polling is off or no account
// is configured.
func (a *App) Poller() (*poller.Poller, error) {
	if !a.Config.BankPollEnabled {
		return nil, nil
	}
	var accounts []poller.Account
	for _, pa := range a.Config.PollAccounts() {
		accounts = append(accounts, poller.Account{BankCode: pa.BankCode, Number: pa.Account, Token: pa.Token})
	}
	if len(accounts) == 0 {
		logger.Warn("bank polling enabled without accounts, not polling")
		return nil, nil
	}
	return poller.New(a.IngestService, accounts, poller.Config{
		Interval:     time.Duration(a.Config.BankPollIntervalSeconds) * time.Second,
		Workers:      a.Config.BankPollWorkers,
		FetchTimeout: a.Config.BankTimeout * time.Duration(a.Config.BankMaxRetries+2),
	})
}

// StartMetrics registers the collectors and serves them on the metrics
// listener in the background.
func (a *App) StartMetrics() error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, a.Config.AppEnv, a.Config.PromNamespace); err != nil {
		return fmt.Errorf("create prometheus metrics: %w", err)
	}
	go prom.ListenAndServer(a.Config.MetricsListenAddr, a.Config.MetricsURI)
	return nil
}

func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		logger.Error("failed to close postgres", "error", err)
	}
	if err := a.Redis.Client().Close(); err != nil {
		logger.Error("failed to close redis", "error", err)
	}
}

func bankConfig(c *config.Config) *bankapi.Config {
	banks := c.Banks()
	codes := make([]string, 0, len(banks))
	for code := range banks {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cfg := &bankapi.Config{
		Timeout:                 c.BankTimeout,
		MaxRetries:              c.BankMaxRetries,
		RetryDelay:              c.BankRetryDelay,
		MaxConns:                100,
		CircuitBreakerThreshold: c.BankCircuitThreshold,
		CircuitBreakerTimeout:   c.BankCircuitTimeout,
	}
	for _, code := range codes {
		cfg.Banks = append(cfg.Banks, bankapi.BankConfig{Code: code, URL: banks[code]})
	}
	return cfg
}
