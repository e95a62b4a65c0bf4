// Package poller pulls account history from the bank api on a fixed
// interval and feeds it through ingestion and matching.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/worker"
)

type Ingester interface {
	IngestAndMatch(ctx context.Context, bankCode, account, token string) (*model.IngestResult, error)
}

type Account struct {
	BankCode string
	Number   string
	Token    string
}

func (a Account) key() string {
	return a.BankCode + "/" + a.Number
}

type Config struct {
	Interval time.Duration
	Workers  int
	// FetchTimeout bounds one account fetch. Zero means no bound.
	FetchTimeout time.Duration
}

type Poller struct {
	ingester Ingester
	accounts []Account
	config   Config
	pool     *worker.WorkerManager

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(ingester Ingester, accounts []Account, config Config) (*Poller, error) {
	if len(accounts) == 0 {
		return nil, errors.New("poller needs at least one account")
	}
	if config.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	p := &Poller{
		ingester: ingester,
		accounts: accounts,
		config:   config,
		pool:     worker.NewWorkerManager(len(accounts), config.Workers),
		inFlight: make(map[string]bool, len(accounts)),
	}
	p.pool.SetWorker(p.handle)
	return p, nil
}

// Run polls every account now and then once per interval until ctx is done.
// An account whose previous fetch is still running is skipped for that tick.
func (p *Poller) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.pool.Start(ctx) }()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	select {
	case <-p.pool.Ready():
	case err := <-done:
		return err
	}

	logger.Info("bank poller started", "accounts", len(p.accounts), "interval", p.config.Interval, "workers", p.config.Workers)
	p.enqueueAll(ctx)
	for {
		select {
		case <-ctx.Done():
			<-done
			logger.Info("bank poller stopped")
			return nil
		case <-ticker.C:
			p.enqueueAll(ctx)
		}
	}
}

func (p *Poller) enqueueAll(ctx context.Context) {
	for _, a := range p.accounts {
		if !p.claim(a) {
			logger.Debug("previous poll still running, skipping", "bank", a.BankCode, "account", a.Number)
			continue
		}
		if err := p.pool.Enqueue(ctx, a); err != nil {
			p.release(a)
			return
		}
	}
}

func (p *Poller) claim(a Account) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[a.key()] {
		return false
	}
	p.inFlight[a.key()] = true
	return true
}

func (p *Poller) release(a Account) {
	p.mu.Lock()
	delete(p.inFlight, a.key())
	p.mu.Unlock()
}

func (p *Poller) handle(ctx context.Context, _ int, job interface{}) {
	a := job.(Account)
	defer p.release(a)

	if p.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.FetchTimeout)
		defer cancel()
	}

	res, err := p.ingester.IngestAndMatch(ctx, a.BankCode, a.Number, a.Token)
	if err != nil {
		logger.Error("bank poll failed", "bank", a.BankCode, "account", a.Number, "error", err)
		return
	}
	logger.Info("bank poll finished",
		"bank", a.BankCode,
		"account", a.Number,
		"fetched", res.TotalFetched,
		"new", res.NewTransactions,
		"matched", res.MatchedCount,
		"row_errors", len(res.Errors))
}
