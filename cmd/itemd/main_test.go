package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"itemcore/internal/platform/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Storage:     config.Storage{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "items.db")},
		Blob:        config.Blob{Driver: "fs", FSRoot: filepath.Join(t.TempDir(), "blobs")},
		CatalogPath: filepath.Join("..", "..", "configs", "types.yaml"),
		HTTPAddr:    "127.0.0.1:0",
		LogLevel:    "error",
		NotifyQueue: 8,
		ServiceName: "itemd-test",
	}
}

func TestRunServesAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not start")
	}
	base := "http://" + addr

	body := `{"type_id":34,"owner_id":90000001,"location_id":60003760,"flag":4,"quantity":500}`
	resp, err := http.Post(base+"/items", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	var created struct {
		ItemID uint32 `json:"item_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.ItemID < 100000 {
		t.Fatalf("unexpected spawn response %d %+v", resp.StatusCode, created)
	}

	resp, err = http.Get(fmt.Sprintf("%s/items/%d", base, created.ItemID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected get status %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metrics), "itemcore_resident_items") {
		t.Fatalf("metrics missing resident gauge")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunFailsOnMissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err == nil {
		t.Fatalf("expected catalog error")
	}
}
