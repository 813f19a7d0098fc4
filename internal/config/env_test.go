package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"InventoryVision/pkg/decoder"
)

var envKeys = []string{
	"APP_ENV", "HOST", "PORT", "YOLO_MODEL", "DETECTION_BACKEND", "ONNXRUNTIME_LIB",
	"YOLO_LABELS", "YOLO_CONFIDENCE", "YOLO_IOU", "YOLO_MAX_DETECTIONS", "YOLO_SESSIONS",
	"AI_DETECTION_URL", "BATCH_WORKERS", "BATCH_TIMEOUT", "REQUEST_TIMEOUT",
	"BODY_LIMIT_MB", "MAX_FILE_MB", "MAX_IMAGE_PIXELS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	clearEnv(t)

	env, err := LoadEnv(NewValidator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.ModelPath != "yolov8n.onnx" || env.Addr() != "0.0.0.0:8000" || env.DetectionBackend != BackendONNX {
		t.Errorf("unexpected defaults %+v", env)
	}
	if env.Confidence != 0.25 || env.IoU != 0.45 || env.MaxDetections != 300 || env.Sessions != 2 {
		t.Errorf("unexpected detector defaults %+v", env)
	}
	if env.BatchWorkers != 1 || env.BatchTimeout != 0 || env.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected batch defaults %+v", env)
	}
	if env.MaxFileBytes() != 20*1024*1024 || env.BodyLimitMB != 50 || env.MaxImagePixels != decoder.DefaultMaxPixels {
		t.Errorf("unexpected size defaults %+v", env)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)

	labels := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(labels, []byte("box\nshelf\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("YOLO_MODEL", "models/shelves.onnx")
	t.Setenv("YOLO_LABELS", labels)
	t.Setenv("DETECTION_BACKEND", "Remote")
	t.Setenv("AI_DETECTION_URL", "ws://detector:8765/ws")
	t.Setenv("BATCH_WORKERS", "4")
	t.Setenv("BATCH_TIMEOUT", "1.5")
	t.Setenv("REQUEST_TIMEOUT", "2m")

	env, err := LoadEnv(NewValidator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.Addr() != "127.0.0.1:9090" || env.ModelPath != "models/shelves.onnx" || env.LabelsPath != labels {
		t.Errorf("overrides not applied: %+v", env)
	}
	if env.DetectionBackend != BackendRemote || env.RemoteURL != "ws://detector:8765/ws" {
		t.Errorf("remote backend not configured: %+v", env)
	}
	if env.BatchWorkers != 4 || env.BatchTimeout != 1500*time.Millisecond || env.RequestTimeout != 2*time.Minute {
		t.Errorf("unexpected batch settings: %+v", env)
	}
}

func TestLoadEnvInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port not a number", map[string]string{"PORT": "http"}, "PORT"},
		{"port out of range", map[string]string{"PORT": "70000"}, "Port"},
		{"unknown backend", map[string]string{"DETECTION_BACKEND": "gpu"}, "DetectionBackend"},
		{"remote without url", map[string]string{"DETECTION_BACKEND": "remote"}, "RemoteURL"},
		{"confidence above one", map[string]string{"YOLO_CONFIDENCE": "1.5"}, "Confidence"},
		{"zero workers", map[string]string{"BATCH_WORKERS": "0"}, "BatchWorkers"},
		{"bad duration", map[string]string{"BATCH_TIMEOUT": "soon"}, "BATCH_TIMEOUT"},
		{"file limit above body limit", map[string]string{"MAX_FILE_MB": "80"}, "MaxFileMB"},
		{"zero pixel budget", map[string]string{"MAX_IMAGE_PIXELS": "0"}, "MaxImagePixels"},
		{"missing labels file", map[string]string{"YOLO_LABELS": "/nonexistent/labels.txt"}, "LabelsPath"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadEnv(NewValidator())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected an error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}
