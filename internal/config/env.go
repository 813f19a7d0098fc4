package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"InventoryVision/pkg/decoder"

	"github.com/go-playground/validator/v10"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Env is the process configuration, read once from the environment.
type Env struct {
	AppEnv           string        `validate:"omitempty,oneof=development production test"`
	Host             string        `validate:"required"`
	Port             int           `validate:"min=1,max=65535"`
	ModelPath        string        `validate:"required"`
	DetectionBackend string        `validate:"oneof=onnx remote"`
	OnnxRuntimeLib   string        `validate:"omitempty,file"`
	LabelsPath       string        `validate:"omitempty,file"`
	Confidence       float64       `validate:"gt=0,lte=1"`
	IoU              float64       `validate:"gt=0,lte=1"`
	MaxDetections    int           `validate:"min=1"`
	Sessions         int           `validate:"min=1,max=64"`
	RemoteURL        string        `validate:"required_if=DetectionBackend remote,omitempty,url"`
	BatchWorkers     int           `validate:"min=1,max=64"`
	BatchTimeout     time.Duration `validate:"gte=0"`
	RequestTimeout   time.Duration `validate:"gt=0"`
	BodyLimitMB      int           `validate:"min=1"`
	MaxFileMB        int           `validate:"min=1,ltefield=BodyLimitMB"`
	MaxImagePixels   int64         `validate:"min=1"`
}

func (e *Env) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e *Env) MaxFileBytes() int64 {
	return int64(e.MaxFileMB) * 1024 * 1024
}

// LoadEnv reads the configuration from the environment, applying defaults
// for unset keys, and validates it.
func LoadEnv(v *validator.Validate) (*Env, error) {
	r := envReader{}

	env := &Env{
		AppEnv:           r.getString("APP_ENV", "development"),
		Host:             r.getString("HOST", "0.0.0.0"),
		Port:             r.getInt("PORT", 8000),
		ModelPath:        r.getString("YOLO_MODEL", "yolov8n.onnx"),
		DetectionBackend: strings.ToLower(r.getString("DETECTION_BACKEND", BackendONNX)),
		OnnxRuntimeLib:   r.getString("ONNXRUNTIME_LIB", ""),
		LabelsPath:       r.getString("YOLO_LABELS", ""),
		Confidence:       r.getFloat("YOLO_CONFIDENCE", 0.25),
		IoU:              r.getFloat("YOLO_IOU", 0.45),
		MaxDetections:    r.getInt("YOLO_MAX_DETECTIONS", 300),
		Sessions:         r.getInt("YOLO_SESSIONS", 2),
		RemoteURL:        r.getString("AI_DETECTION_URL", ""),
		BatchWorkers:     r.getInt("BATCH_WORKERS", 1),
		BatchTimeout:     r.getDuration("BATCH_TIMEOUT", 0),
		RequestTimeout:   r.getDuration("REQUEST_TIMEOUT", 30*time.Second),
		BodyLimitMB:      r.getInt("BODY_LIMIT_MB", 50),
		MaxFileMB:        r.getInt("MAX_FILE_MB", 20),
		MaxImagePixels:   int64(r.getInt("MAX_IMAGE_PIXELS", decoder.DefaultMaxPixels)),
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(r.errs...))
	}

	if err := v.Struct(env); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return env, nil
}

type envReader struct {
	errs []error
}

func (r *envReader) getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *envReader) getInt(key string, def int) int {
	raw := r.getString(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func (r *envReader) getFloat(key string, def float64) float64 {
	raw := r.getString(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return def
	}
	return v
}

// getDuration accepts Go durations ("90s", "2m") or a plain number of seconds.
func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	raw := r.getString(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}
