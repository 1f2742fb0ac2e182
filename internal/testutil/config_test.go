package testutil

import (
	"strings"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to the local test profile", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "DB_SSL_MODE"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		if cfg.Host != "localhost" || cfg.Port != "55432" {
			t.Errorf("expected localhost:55432, got %s:%s", cfg.Host, cfg.Port)
		}
		if cfg.User != "ledger" || cfg.DBName != "ledger" {
			t.Errorf("expected ledger user and db, got %s/%s", cfg.User, cfg.DBName)
		}
		if cfg.SSLMode != "disable" {
			t.Errorf("expected sslmode disable, got %s", cfg.SSLMode)
		}
	})

	t.Run("respects TEST_DB_* overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Errorf("expected postgres:5432, got %s:%s", cfg.Host, cfg.Port)
		}
	})
}

func TestTestDBConfigDSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "ledger", SSLMode: "disable"}

	plain := cfg.DSN("")
	if !strings.HasPrefix(plain, "postgres://u:p%40ss@db:5432/ledger?") {
		t.Errorf("unexpected dsn %s", plain)
	}
	if strings.Contains(plain, "search_path") {
		t.Errorf("dsn without schema should not set search_path: %s", plain)
	}

	scoped := cfg.DSN("t_abcd")
	if !strings.Contains(scoped, "search_path=t_abcd%2Cpublic") {
		t.Errorf("expected search_path in %s", scoped)
	}
}

func TestSchemaName(t *testing.T) {
	a, b := schemaName(), schemaName()
	if !strings.HasPrefix(a, "t_") || a == b {
		t.Errorf("expected distinct t_ prefixed names, got %s and %s", a, b)
	}
}
