package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production"},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ledger", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Ledger: LedgerConfig{
			SupportedCurrencies:    []string{"ETH"},
			ConfirmationThresholds: map[string]int{"ETH": 12},
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalAllowsEmptySSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local"},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ledger", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Ledger: LedgerConfig{
			SupportedCurrencies:    []string{"ETH"},
			ConfirmationThresholds: map[string]int{"ETH": 12},
		},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RequiresThresholdPerSupportedCurrency(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local"},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ledger"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Ledger: LedgerConfig{
			SupportedCurrencies:    []string{"ETH", "BTC"},
			ConfirmationThresholds: map[string]int{"ETH": 12},
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for BTC missing a confirmation threshold")
	}
}

func TestPostgresDSNAndRedisAddr(t *testing.T) {
	c := Config{
		DB:    DBConfig{Host: "db.internal", Port: 5432, User: "ledger", Password: "x", Name: "ledger", SSLMode: "require"},
		Redis: RedisConfig{Host: "redis.internal", Port: 6379},
	}
	if got := c.PostgresDSN(); got != "host=db.internal port=5432 user=ledger password=x dbname=ledger sslmode=require" {
		t.Fatalf("unexpected DSN: %s", got)
	}
	if got := c.RedisAddr(); got != "redis.internal:6379" {
		t.Fatalf("unexpected redis addr: %s", got)
	}
}

func TestLiquidityFloorDecimals_ParsesEachCurrency(t *testing.T) {
	c := Config{Ledger: LedgerConfig{LiquidityFloors: map[string]decimalString{"ETH": "10.5", "BTC": "1"}}}
	got, err := c.LiquidityFloorDecimals()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got["ETH"].Equal(decimal.NewFromFloat(10.5)) {
		t.Fatalf("expected ETH floor 10.5, got %s", got["ETH"])
	}
	if !got["BTC"].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected BTC floor 1, got %s", got["BTC"])
	}
}

func TestFeesFloorDecimals_RejectsInvalidDecimal(t *testing.T) {
	c := Config{Ledger: LedgerConfig{FeesFloors: map[string]decimalString{"ETH": "not-a-number"}}}
	if _, err := c.FeesFloorDecimals(); err == nil {
		t.Fatalf("expected error for invalid decimal")
	}
}
