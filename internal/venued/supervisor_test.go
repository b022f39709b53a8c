package venued

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSupervisorRequiresModules(t *testing.T) {
	s := Supervisor{Logger: zap.NewNop()}
	if err := s.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error with no modules")
	}
}

func TestSupervisorStopsOnModuleError(t *testing.T) {
	s := Supervisor{Logger: zap.NewNop()}
	boom := errors.New("broker unreachable")
	modules := []ModuleRunner{
		{Name: "ok", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
		{Name: "broken", Run: func(ctx context.Context) error {
			return boom
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Run(ctx, modules)
	if err == nil {
		t.Fatalf("expected module error")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped module error, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected module name in error, got %v", err)
	}
}

func TestSupervisorWaitsForCleanShutdown(t *testing.T) {
	s := Supervisor{Logger: zap.NewNop()}
	var stopped atomic.Int32
	modules := []ModuleRunner{
		{Name: "first", Run: func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return nil
		}},
		{Name: "second", Run: func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return nil
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := s.Run(ctx, modules); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if stopped.Load() != 2 {
		t.Fatalf("expected both modules stopped, got %d", stopped.Load())
	}
}
