package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestShutdownManager_RunsFuncsInOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var order []string
	sm.RegisterShutdownFunc("store", func(context.Context) error {
		order = append(order, "store")
		return nil
	})
	sm.RegisterShutdownFunc("cache", func(context.Context) error {
		order = append(order, "cache")
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "store,cache" {
		t.Errorf("Unexpected order %v", order)
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)
	sm.AddServer(&http.Server{Addr: "127.0.0.1:0"})
	sm.RegisterShutdownFunc("cache", func(context.Context) error {
		return errors.New("close failed")
	})

	err := sm.Shutdown()
	if err == nil || !strings.Contains(err.Error(), "cache: close failed") {
		t.Errorf("Expected wrapped cache error, got %v", err)
	}
}

func TestShutdownManager_ContextCancel(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 0)
	if sm.timeout != 30*time.Second {
		t.Errorf("Expected default timeout, got %v", sm.timeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sm.WaitForShutdown(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
