package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitPreferences_Memory(t *testing.T) {
	t.Parallel()

	backend, err := initPreferences(context.Background(), Config{
		PreferencesDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initPreferences(memory) failed: %v", err)
	}
	if backend.repo == nil {
		t.Fatal("repo should not be nil for memory storage")
	}
	if backend.pg != nil {
		t.Fatal("memory storage should not open postgres")
	}
	backend.close(log.WithField("test", "memory-storage"))
}

func TestInitPreferences_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initPreferences(context.Background(), Config{
		PreferencesDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitPreferences_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initPreferences(context.Background(), Config{
		PreferencesDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}
