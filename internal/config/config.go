package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

/*
Config holds all configuration required by the ledger engine process.
All values MUST come from environment variables.
No business logic should depend on raw env vars.
*/
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
}

/* ===================== APP ===================== */

type AppConfig struct {
	Env string
}

/* ===================== DATABASE ===================== */

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string // disable, require, verify-ca, verify-full
}

/* ===================== REDIS ===================== */

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	UseTLS   bool
}

/* ===================== LEDGER ===================== */

// LedgerConfig carries the per-currency thresholds and floors the engine
// enforces, and the global mutation circuit breaker the Invariant Auditor
// can trip.
type LedgerConfig struct {
	SupportedCurrencies []string

	// ConfirmationThresholds maps "ETH" -> a minimum confirmation count and
	// is validated for every supported currency. The Reconciler does not
	// read it: deposits are credited by the USD-value table in
	// internal/ledger/reconciler/thresholds.go.
	ConfirmationThresholds map[string]int

	// LiquidityFloors maps currency -> minimum Dr-side balance the
	// Liquidity Monitor tolerates before requesting a rebalance.
	LiquidityFloors map[string]decimalString

	// FeesFloors maps currency -> minimum system-fees-Cr balance below
	// which the Liquidity Monitor raises an alert (I5).
	FeesFloors map[string]decimalString

	SuspendOnInvariantViolation bool
}

// decimalString defers parsing to shopspring/decimal at the point of use,
// so config stays free of the dependency's parse errors at load time.
type decimalString string

/* ===================== SCHEDULER ===================== */

type SchedulerConfig struct {
	TickInterval time.Duration
}

/* ===================== LOAD ===================== */

func Load() (Config, error) {
	var parseErrs []error
	var err error

	c := Config{}

	/* ---- APP ---- */
	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))

	/* ---- DB ---- */
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, err = mustInt("DB_PORT")
	parseErrs = append(parseErrs, err)

	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	/* ---- REDIS ---- */
	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, err = mustInt("REDIS_PORT")
	parseErrs = append(parseErrs, err)

	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.UseTLS = strings.ToLower(os.Getenv("REDIS_TLS")) == "true"

	/* ---- LEDGER ---- */
	c.Ledger.SupportedCurrencies = splitList(os.Getenv("LEDGER_SUPPORTED_CURRENCIES"))
	c.Ledger.ConfirmationThresholds, err = parseIntMap(os.Getenv("LEDGER_CONFIRMATION_THRESHOLDS"))
	parseErrs = append(parseErrs, err)
	c.Ledger.LiquidityFloors = parseDecimalMap(os.Getenv("LEDGER_LIQUIDITY_FLOORS"))
	c.Ledger.FeesFloors = parseDecimalMap(os.Getenv("LEDGER_FEES_FLOORS"))
	c.Ledger.SuspendOnInvariantViolation = strings.ToLower(os.Getenv("LEDGER_SUSPEND_ON_INVARIANT_VIOLATION")) == "true"

	/* ---- SCHEDULER ---- */
	c.Scheduler.TickInterval, err = mustDuration("SCHEDULER_TICK_INTERVAL")
	parseErrs = append(parseErrs, err)

	/* ---- APPLY DEFAULTS (NO SIDE EFFECTS IN VALIDATE) ---- */
	if c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = 30 * time.Second
	}
	if len(c.Ledger.ConfirmationThresholds) == 0 {
		c.Ledger.ConfirmationThresholds = map[string]int{"ETH": 12, "BTC": 6}
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

/* ===================== VALIDATION ===================== */

func (c Config) Validate() error {
	var errs []error

	/* ---- APP ---- */
	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	}
	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be local, dev, staging, or production"))
	}

	/* ---- DB ---- */
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 {
		errs = append(errs, errors.New("DB_PORT is required"))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.IsProduction() && c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE required in production"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("invalid DB_SSLMODE"))
	}

	/* ---- REDIS ---- */
	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, errors.New("REDIS_PORT is required"))
	}

	/* ---- LEDGER ---- */
	if len(c.Ledger.SupportedCurrencies) == 0 {
		errs = append(errs, errors.New("LEDGER_SUPPORTED_CURRENCIES is required"))
	}
	for _, cur := range c.Ledger.SupportedCurrencies {
		if _, ok := c.Ledger.ConfirmationThresholds[cur]; !ok {
			errs = append(errs, fmt.Errorf("no confirmation threshold configured for currency %s", cur))
		}
	}

	return joinErrors(errs)
}

/* ===================== HELPERS ===================== */

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// LiquidityFloorDecimals parses LiquidityFloors into currency -> decimal,
// for callers (cmd/ledgerd) outside this package that can't name
// decimalString directly.
func (c Config) LiquidityFloorDecimals() (map[string]decimal.Decimal, error) {
	return decimalMap(c.Ledger.LiquidityFloors)
}

// FeesFloorDecimals parses FeesFloors into currency -> decimal.
func (c Config) FeesFloorDecimals() (map[string]decimal.Decimal, error) {
	return decimalMap(c.Ledger.FeesFloors)
}

func decimalMap(in map[string]decimalString) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal for %s: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return strconv.Atoi(v)
}

func mustDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be valid duration like 30s", key)
	}
	return d, nil
}

func splitList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseIntMap parses "ETH=12,BTC=6" into a currency -> int map.
func parseIntMap(v string) (map[string]int, error) {
	out := map[string]int{}
	for _, part := range splitList(v) {
		k, val, err := splitPair(part)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid integer for %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// parseDecimalMap parses "ETH=0.05,BTC=0.001" into a currency -> decimal
// string map; the caller parses the decimal value at point of use.
func parseDecimalMap(v string) map[string]decimalString {
	out := map[string]decimalString{}
	for _, part := range splitList(v) {
		k, val, err := splitPair(part)
		if err != nil {
			continue
		}
		out[k] = decimalString(val)
	}
	return out
}

func splitPair(part string) (key, value string, err error) {
	idx := strings.Index(part, "=")
	if idx < 0 {
		return "", "", fmt.Errorf("expected key=value pair, got %q", part)
	}
	return strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+1:]), nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	var filtered []error
	for _, e := range errs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range filtered {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
