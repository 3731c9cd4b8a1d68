package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("PDFPRO_CANVAS_WIDTH", "")
	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr :8787, got %q", cfg.Addr)
	}
	if cfg.CanvasWidth != 1200 || cfg.CanvasHeight != 800 {
		t.Fatalf("expected 1200x800 canvas, got %dx%d", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected history limit 50, got %d", cfg.HistoryLimit)
	}
	if cfg.EraserColor != "#ffffff" {
		t.Fatalf("expected white eraser, got %q", cfg.EraserColor)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PDFPRO_CANVAS_WIDTH", "640")
	t.Setenv("PDFPRO_FLUSH_SECONDS", "3")
	t.Setenv("PDFPRO_HISTORY_LIMIT", "not-a-number")
	t.Setenv("PDFPRO_MDNS", "true")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := Load()
	if cfg.CanvasWidth != 640 {
		t.Fatalf("expected canvas width 640, got %d", cfg.CanvasWidth)
	}
	if cfg.FlushEvery != 3*time.Second {
		t.Fatalf("expected flush every 3s, got %s", cfg.FlushEvery)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("invalid history limit should fall back to 50, got %d", cfg.HistoryLimit)
	}
	if !cfg.MDNS {
		t.Fatal("expected mDNS to be enabled")
	}
	if cfg.MinioUseSSL {
		t.Fatal("unparseable MINIO_USE_SSL should leave SSL disabled")
	}
}
