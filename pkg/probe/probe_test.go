package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{
			Name: "Success Probe",
			Check: func(ctx context.Context) error {
				return nil
			},
			Critical: true,
		},
		{
			Name: "Failure Probe (Non-Critical)",
			Check: func(ctx context.Context) error {
				return errors.New("minor issue")
			},
			Critical: false,
		},
	}

	results := Run(context.Background(), probes)

	if len(results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results))
	}

	if results[0].Error != nil {
		t.Errorf("Expected success probe to pass, got error: %v", results[0].Error)
	}

	if results[1].Error == nil {
		t.Error("Expected failure probe to fail, got nil")
	}
}

func TestAnalyzeResults(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name: "All Pass",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: nil},
			},
			wantErr: false,
		},
		{
			name: "Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
		{
			name: "Non-Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
			},
			wantErr: false,
		},
		{
			name: "Mixed Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
				{Probe: Probe{Name: "P2", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_Concurrent(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	probes := []Probe{{Name: "A", Check: slow}, {Name: "B", Check: slow}, {Name: "C", Check: slow}}

	start := time.Now()
	results := Run(context.Background(), probes)
	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Errorf("Run took %v, probes did not run concurrently", elapsed)
	}
	for i, r := range results {
		if r.Probe.Name != probes[i].Name {
			t.Errorf("results[%d] = %s, want %s", i, r.Probe.Name, probes[i].Name)
		}
	}
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Result{Probe: Probe{Critical: true}}, "PASS"},
		{Result{Probe: Probe{Critical: true}, Error: errors.New("x")}, "FAIL"},
		{Result{Probe: Probe{Critical: false}, Error: errors.New("x")}, "WARN"},
	}
	for _, tt := range tests {
		if got := tt.r.Status(); got != tt.want {
			t.Errorf("Status() = %s, want %s", got, tt.want)
		}
	}
}

func TestRun_Timeout(t *testing.T) {
	results := Run(context.Background(), []Probe{{
		Name:    "Slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})
	if !errors.Is(results[0].Error, context.DeadlineExceeded) {
		t.Errorf("Error = %v, want deadline exceeded", results[0].Error)
	}
	if results[0].Duration > time.Second {
		t.Errorf("probe ran for %v", results[0].Duration)
	}
}

func TestDialCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	if err := DialCheck(addr)(context.Background()); err != nil {
		t.Errorf("DialCheck(open) = %v", err)
	}
	ln.Close()
	if err := DialCheck(addr)(context.Background()); err == nil {
		t.Error("DialCheck(closed) = nil, want error")
	}
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "map.mbtiles")
	empty := filepath.Join(dir, "empty.mbtiles")
	if err := os.WriteFile(full, []byte("SQLite format 3\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"Readable", full, false},
		{"Empty", empty, true},
		{"Missing", filepath.Join(dir, "nope"), true},
		{"Directory", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FileCheck(tt.path)(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("FileCheck(%s) = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestDirWritableCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "carnav.db")
	if err := DirWritableCheck(path)(context.Background()); err != nil {
		t.Fatalf("DirWritableCheck = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 0 {
		t.Errorf("probe left %d files behind", len(entries))
	}
}
