package config

import (
	"sort"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting of the reconciler binaries. Values come from
// the environment, optionally seeded from a .env file; nothing else should
// read os.Getenv directly.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=bank_reconciler"`

	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR,default=:9100"`
	MetricsURI        string `env:"METRICS_URI,default=/metrics"`
	PromNamespace     string `env:"PROM_NAMESPACE,default=bank_reconciler"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=reconciler:"`

	ReconcileEnabled         bool          `env:"RECONCILE_ENABLED,default=true"`
	ReconcileInterval        time.Duration `env:"RECONCILE_INTERVAL,default=5m"`
	ReconcileStrictReference bool          `env:"RECONCILE_STRICT_REFERENCE,default=false"`
	// comma separated, bank_transfer and atm when unset
	ReconcilePaymentMethods  string        `env:"RECONCILE_PAYMENT_METHODS"`
	ReconcileLockEnabled     bool          `env:"RECONCILE_LOCK_ENABLED,default=false"`
	ReconcileLockKey         string        `env:"RECONCILE_LOCK_KEY,default=lock:reconcile-run"`
	ReconcileLockTTL         time.Duration `env:"RECONCILE_LOCK_TTL,default=2m"`

	EventsStream    string `env:"EVENTS_STREAM,default=events:payment"`
	EventsStreamMax int64  `env:"EVENTS_STREAM_MAX_LEN,default=100000"`

	// number of minor units per major unit is 10^CurrencyExponent
	CurrencyExponent int32 `env:"CURRENCY_EXPONENT,default=0"`

	// BANK_ENDPOINTS is a comma separated list of code=url pairs,
	// e.g. "VCB=https://api.vcb.example,ACB=https://acb.example"
	BankEndpoints           string        `env:"BANK_ENDPOINTS"`
	BankTimeout             time.Duration `env:"BANK_TIMEOUT,default=10s"`
	BankMaxRetries          int           `env:"BANK_MAX_RETRIES,default=2"`
	BankRetryDelay          time.Duration `env:"BANK_RETRY_DELAY,default=500ms"`
	BankCircuitThreshold    int           `env:"BANK_CIRCUIT_THRESHOLD,default=5"`
	BankCircuitTimeout      time.Duration `env:"BANK_CIRCUIT_TIMEOUT,default=1m"`
	BankDefaultAccount      string        `env:"BANK_DEFAULT_ACCOUNT"`
	BankDefaultCode         string        `env:"BANK_DEFAULT_CODE"`
	BankDefaultToken        string        `env:"BANK_DEFAULT_TOKEN"`
	BankPollEnabled         bool          `env:"BANK_POLL_ENABLED,default=false"`
	BankPollIntervalSeconds int           `env:"BANK_POLL_INTERVAL_SECONDS,default=60"`
	// BANK_POLL_ACCOUNTS lists extra code=account pairs polled with
	// BANK_DEFAULT_TOKEN, on top of the default account.
	BankPollAccounts string `env:"BANK_POLL_ACCOUNTS"`
	BankPollWorkers  int    `env:"BANK_POLL_WORKERS,default=2"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err := c.Validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration. Tests use it instead of Load.
func Set(c *Config) {
	config = c
}

func (c *Config) Validate() error {
	if c.ReconcileInterval <= 0 {
		return errors.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}
	if c.ReconcileLockEnabled && c.ReconcileLockTTL <= 0 {
		return errors.New("RECONCILE_LOCK_TTL must be positive when the run lock is enabled")
	}
	if c.CurrencyExponent < 0 || c.CurrencyExponent > 6 {
		return errors.Errorf("CURRENCY_EXPONENT out of range: %d", c.CurrencyExponent)
	}
	if _, err := parsePairs(c.BankEndpoints); err != nil {
		return errors.Wrap(err, "BANK_ENDPOINTS")
	}
	if _, err := parsePairs(c.BankPollAccounts); err != nil {
		return errors.Wrap(err, "BANK_POLL_ACCOUNTS")
	}
	if c.BankPollEnabled && c.BankPollIntervalSeconds <= 0 {
		return errors.Errorf("BANK_POLL_INTERVAL_SECONDS must be positive, got %d", c.BankPollIntervalSeconds)
	}
	return nil
}

var defaultPaymentMethods = []string{"bank_transfer", "atm"}

// PaymentMethods returns the order payment methods settled by bank transfer.
func (c *Config) PaymentMethods() []string {
	if strings.TrimSpace(c.ReconcilePaymentMethods) == "" {
		return append([]string(nil), defaultPaymentMethods...)
	}
	var out []string
	for _, m := range strings.Split(c.ReconcilePaymentMethods, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Banks returns bank code to base url.
func (c *Config) Banks() map[string]string {
	m, _ := parsePairs(c.BankEndpoints)
	return m
}

type PollAccount struct {
	BankCode string
	Account  string
	Token    string
}

// PollAccounts returns the accounts the bank poller fetches, the default
// account first. Duplicates are dropped.
func (c *Config) PollAccounts() []PollAccount {
	var out []PollAccount
	seen := make(map[string]bool)
	add := func(code, account string) {
		if code == "" || account == "" || seen[code+"/"+account] {
			return
		}
		seen[code+"/"+account] = true
		out = append(out, PollAccount{BankCode: code, Account: account, Token: c.BankDefaultToken})
	}
	add(c.BankDefaultCode, c.BankDefaultAccount)

	pairs, _ := parsePairs(c.BankPollAccounts)
	codes := make([]string, 0, len(pairs))
	for code := range pairs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		add(code, pairs[code])
	}
	return out
}

func parsePairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, errors.Errorf("malformed pair %q", part)
		}
		out[k] = v
	}
	return out, nil
}
