package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical capture defaults file.
const DefaultConfigPath = "config/capture.defaults.json"

// Confidence threshold names accepted by confidence_threshold.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Sampling rate names accepted by the *_sampling_rate keys.
const (
	RateSlow    = "slow"
	RateRegular = "regular"
	RateFast    = "fast"
)

// CaptureConfig is the root configuration for a capture session. All
// fields are optional; the Get* methods supply defaults for nil fields so
// partial files are safe.
type CaptureConfig struct {
	// Buffer sizing
	MaxPoints         *int   `json:"max_points,omitempty"`
	FallbackMaxPoints *int   `json:"fallback_max_points,omitempty"`
	MaxBufferBytes    *int64 `json:"max_buffer_bytes,omitempty"`

	// Sampling
	PointsPerFrame         *int    `json:"points_per_frame,omitempty"`
	CameraWidth            *int    `json:"camera_width,omitempty"`
	CameraHeight           *int    `json:"camera_height,omitempty"`
	ConfidenceThreshold    *string `json:"confidence_threshold,omitempty"`
	HorizontalSamplingRate *string `json:"horizontal_sampling_rate,omitempty"`
	VerticalSamplingRate   *string `json:"vertical_sampling_rate,omitempty"`

	// Pipeline
	FrameQueueSize  *int    `json:"frame_queue_size,omitempty"`
	SnapshotTimeout *string `json:"snapshot_timeout,omitempty"` // duration string like "5s"

	// Export and persistence
	ExportDir            *string `json:"export_dir,omitempty"`
	ThumbnailSize        *int    `json:"thumbnail_size,omitempty"`
	ProcessingMaxRetries *int    `json:"processing_max_retries,omitempty"`

	Debug *bool `json:"debug,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrInt64(v int64) *int64    { return &v }
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyCaptureConfig returns a CaptureConfig with all fields nil.
func EmptyCaptureConfig() *CaptureConfig {
	return &CaptureConfig{}
}

// DefaultCaptureConfig returns a config with every field populated with
// its default value. It mirrors config/capture.defaults.json except for
// export_dir, which is left unset so the OS temp dir is used.
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		MaxPoints:              ptrInt(5_000_000),
		FallbackMaxPoints:      ptrInt(0),
		MaxBufferBytes:         ptrInt64(234_000_000),
		PointsPerFrame:         ptrInt(2000),
		CameraWidth:            ptrInt(1920),
		CameraHeight:           ptrInt(1440),
		ConfidenceThreshold:    ptrString(ConfidenceMedium),
		HorizontalSamplingRate: ptrString(RateRegular),
		VerticalSamplingRate:   ptrString(RateRegular),
		FrameQueueSize:         ptrInt(1),
		SnapshotTimeout:        ptrString("5s"),
		ThumbnailSize:          ptrInt(256),
		ProcessingMaxRetries:   ptrInt(3),
		Debug:                  ptrBool(false),
	}
}

// LoadCaptureConfig loads a CaptureConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCaptureConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *CaptureConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/capture/l3accumulate/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadCaptureConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *CaptureConfig) Validate() error {
	if c.MaxPoints != nil && *c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive, got %d", *c.MaxPoints)
	}
	if c.FallbackMaxPoints != nil && *c.FallbackMaxPoints < 0 {
		return fmt.Errorf("fallback_max_points must be non-negative, got %d", *c.FallbackMaxPoints)
	}
	if c.MaxBufferBytes != nil && *c.MaxBufferBytes < 0 {
		return fmt.Errorf("max_buffer_bytes must be non-negative, got %d", *c.MaxBufferBytes)
	}
	if c.PointsPerFrame != nil && *c.PointsPerFrame <= 0 {
		return fmt.Errorf("points_per_frame must be positive, got %d", *c.PointsPerFrame)
	}
	if c.CameraWidth != nil && *c.CameraWidth <= 0 {
		return fmt.Errorf("camera_width must be positive, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight <= 0 {
		return fmt.Errorf("camera_height must be positive, got %d", *c.CameraHeight)
	}
	if c.ConfidenceThreshold != nil {
		switch *c.ConfidenceThreshold {
		case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		default:
			return fmt.Errorf("invalid confidence_threshold %q", *c.ConfidenceThreshold)
		}
	}
	for key, v := range map[string]*string{
		"horizontal_sampling_rate": c.HorizontalSamplingRate,
		"vertical_sampling_rate":   c.VerticalSamplingRate,
	} {
		if v == nil {
			continue
		}
		switch *v {
		case RateSlow, RateRegular, RateFast:
		default:
			return fmt.Errorf("invalid %s %q", key, *v)
		}
	}
	if c.FrameQueueSize != nil && *c.FrameQueueSize < 1 {
		return fmt.Errorf("frame_queue_size must be at least 1, got %d", *c.FrameQueueSize)
	}
	if c.SnapshotTimeout != nil && *c.SnapshotTimeout != "" {
		if _, err := time.ParseDuration(*c.SnapshotTimeout); err != nil {
			return fmt.Errorf("invalid snapshot_timeout '%s': %w", *c.SnapshotTimeout, err)
		}
	}
	if c.ThumbnailSize != nil && *c.ThumbnailSize < 16 {
		return fmt.Errorf("thumbnail_size must be at least 16, got %d", *c.ThumbnailSize)
	}
	if c.ProcessingMaxRetries != nil && *c.ProcessingMaxRetries < 0 {
		return fmt.Errorf("processing_max_retries must be non-negative, got %d", *c.ProcessingMaxRetries)
	}
	return nil
}

// GetMaxPoints returns the ring buffer capacity in particles.
func (c *CaptureConfig) GetMaxPoints() int {
	if c.MaxPoints == nil {
		return 5_000_000
	}
	return *c.MaxPoints
}

// GetFallbackMaxPoints returns the reduced capacity tried after a creation
// failure, or 0 when no fallback is configured.
func (c *CaptureConfig) GetFallbackMaxPoints() int {
	if c.FallbackMaxPoints == nil {
		return 0
	}
	return *c.FallbackMaxPoints
}

// GetMaxBufferBytes returns the allocation ceiling for a single buffer.
func (c *CaptureConfig) GetMaxBufferBytes() int64 {
	if c.MaxBufferBytes == nil {
		return 234_000_000
	}
	return *c.MaxBufferBytes
}

func (c *CaptureConfig) GetPointsPerFrame() int {
	if c.PointsPerFrame == nil {
		return 2000
	}
	return *c.PointsPerFrame
}

func (c *CaptureConfig) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 1920
	}
	return *c.CameraWidth
}

func (c *CaptureConfig) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 1440
	}
	return *c.CameraHeight
}

// GetConfidenceThreshold returns the confidence level name ("medium" by default).
func (c *CaptureConfig) GetConfidenceThreshold() string {
	if c.ConfidenceThreshold == nil || *c.ConfidenceThreshold == "" {
		return ConfidenceMedium
	}
	return *c.ConfidenceThreshold
}

func (c *CaptureConfig) GetHorizontalSamplingRate() string {
	if c.HorizontalSamplingRate == nil || *c.HorizontalSamplingRate == "" {
		return RateRegular
	}
	return *c.HorizontalSamplingRate
}

func (c *CaptureConfig) GetVerticalSamplingRate() string {
	if c.VerticalSamplingRate == nil || *c.VerticalSamplingRate == "" {
		return RateRegular
	}
	return *c.VerticalSamplingRate
}

func (c *CaptureConfig) GetFrameQueueSize() int {
	if c.FrameQueueSize == nil {
		return 1
	}
	return *c.FrameQueueSize
}

// GetSnapshotTimeout parses and returns SnapshotTimeout as a time.Duration.
func (c *CaptureConfig) GetSnapshotTimeout() time.Duration {
	if c.SnapshotTimeout == nil || *c.SnapshotTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.SnapshotTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetExportDir returns the export directory, falling back to the OS temp dir.
func (c *CaptureConfig) GetExportDir() string {
	if c.ExportDir == nil || *c.ExportDir == "" {
		return os.TempDir()
	}
	return *c.ExportDir
}

func (c *CaptureConfig) GetThumbnailSize() int {
	if c.ThumbnailSize == nil {
		return 256
	}
	return *c.ThumbnailSize
}

func (c *CaptureConfig) GetProcessingMaxRetries() int {
	if c.ProcessingMaxRetries == nil {
		return 3
	}
	return *c.ProcessingMaxRetries
}

func (c *CaptureConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
