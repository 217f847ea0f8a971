package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "interval too short",
			config: Config{
				Interval:        500 * time.Millisecond,
				TaskTimeout:     time.Second,
				ShutdownTimeout: time.Second,
			},
			wantErr: true,
		},
		{
			name: "task timeout longer than interval",
			config: Config{
				Interval:        time.Minute,
				TaskTimeout:     2 * time.Minute,
				ShutdownTimeout: time.Second,
			},
			wantErr: true,
		},
		{
			name: "shutdown timeout too short",
			config: Config{
				Interval:        time.Minute,
				TaskTimeout:     time.Second,
				ShutdownTimeout: 0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "permanent error",
			err:  NewPermanentError(context.Canceled),
			want: true,
		},
		{
			name: "regular error",
			err:  context.Canceled,
			want: false,
		},
		{
			name: "wrapped permanent error",
			err:  errors.Join(errors.New("outer"), NewPermanentError(errors.New("inner"))),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testConfig() Config {
	return Config{
		Interval:        time.Hour,
		TaskTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		RunOnStart:      true,
	}
}

func TestWorker_RunOnStart(t *testing.T) {
	w, err := New(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ran := make(chan struct{}, 1)
	w.Register(TaskFunc{TaskName: "sessions", Fn: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected task context to carry a deadline")
		}
		ran <- struct{}{}
		return nil
	}})

	w.Start(context.Background())
	defer w.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}
}

func TestWorker_PermanentErrorStopsTask(t *testing.T) {
	w, err := New(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var runs int32
	w.Register(TaskFunc{TaskName: "broken", Fn: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return NewPermanentError(errors.New("table missing"))
	}})

	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task loop did not exit after permanent error")
	}

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	w.Stop()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w, err := New(testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{}, newTestLogger()); err == nil {
		t.Error("expected error for zero config")
	}
}
