// Package config loads, validates and watches the liquidfield settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"liquidfield/core"
	"liquidfield/mount"
)

// Settings is the persisted configuration document
type Settings struct {
	Trail   TrailSettings   `yaml:"trail"`
	Field   FieldSettings   `yaml:"field"`
	Host    HostSettings    `yaml:"host"`
	Feed    FeedSettings    `yaml:"feed"`
	Logging LoggingSettings `yaml:"logging"`
}

// TrailSettings configures the trail encoder
type TrailSettings struct {
	TextureSize int     `yaml:"textureSize"`
	MaxAge      int     `yaml:"maxAge"`
	Radius      float64 `yaml:"radius"` // texels; 0 derives it from textureSize
	ForceScale  float64 `yaml:"forceScale"`
	ForceCap    float64 `yaml:"forceCap"`
}

// FieldSettings are the presentation parameters of the shader
type FieldSettings struct {
	Color1            [3]float32 `yaml:"color1,flow"`
	Color2            [3]float32 `yaml:"color2,flow"`
	DarkBase          [3]float32 `yaml:"darkBase,flow"`
	Speed             float32    `yaml:"speed"`
	Intensity         float32    `yaml:"intensity"`
	GrainIntensity    float32    `yaml:"grainIntensity"`
	GradientSize      float32    `yaml:"gradientSize"`
	GradientCount     int        `yaml:"gradientCount"`
	Color1Weight      float32    `yaml:"color1Weight"`
	Color2Weight      float32    `yaml:"color2Weight"`
	DisplacementScale float32    `yaml:"displacementScale"`
	BlendFloor        float32    `yaml:"blendFloor"`
}

// HostSettings configures the window hosts
type HostSettings struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
	// Scope is "window" or "container"
	Scope string `yaml:"scope"`
	// ContainerInset shrinks the container from every window edge, in pixels
	ContainerInset int    `yaml:"containerInset"`
	MaxFrameDelta  string `yaml:"maxFrameDelta"`
	DebugOverlay   bool   `yaml:"debugOverlay"`
}

// FeedSettings configures the remote pointer feed
type FeedSettings struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LoggingSettings configures zap
type LoggingSettings struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the reference configuration
func Default() *Settings {
	trail := core.DefaultTrailOptions()
	params := core.DefaultFieldParams()
	return &Settings{
		Trail: TrailSettings{
			TextureSize: trail.TextureSize,
			MaxAge:      trail.MaxAge,
			ForceScale:  trail.ForceScale,
			ForceCap:    trail.ForceCap,
		},
		Field: FieldSettings{
			Color1:            params.Color1,
			Color2:            params.Color2,
			DarkBase:          params.DarkBase,
			Speed:             params.Speed,
			Intensity:         params.Intensity,
			GrainIntensity:    params.GrainIntensity,
			GradientSize:      params.GradientSize,
			GradientCount:     params.GradientCount,
			Color1Weight:      params.Color1Weight,
			Color2Weight:      params.Color2Weight,
			DisplacementScale: params.DisplacementScale,
			BlendFloor:        params.BlendFloor,
		},
		Host: HostSettings{
			Width:         1280,
			Height:        800,
			Title:         "liquidfield",
			Scope:         mount.ScopeWindow.String(),
			MaxFrameDelta: mount.DefaultMaxFrameDelta.String(),
		},
		Feed: FeedSettings{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingSettings{
			Level: "info",
		},
	}
}

// Load overlays the YAML file at path on the defaults. A missing file yields
// the defaults. The result is validated.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.applyEnvOverrides()
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.applyEnvOverrides()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings as YAML, creating the directory if needed
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// applyEnvOverrides lets deployments move the feed and change verbosity
// without editing the file.
func (s *Settings) applyEnvOverrides() {
	if addr := os.Getenv("LIQUIDFIELD_FEED_ADDR"); addr != "" {
		s.Feed.Addr = addr
	}
	if level := os.Getenv("LIQUIDFIELD_LOG_LEVEL"); level != "" {
		s.Logging.Level = level
	}
}

// ValidationError lists every invalid field of a settings document
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid settings: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid settings: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Validate rejects out-of-range values
func (s *Settings) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Trail.TextureSize < 8 {
		add("trail.textureSize must be at least 8, got %d", s.Trail.TextureSize)
	}
	if s.Trail.MaxAge < 1 {
		add("trail.maxAge must be at least 1, got %d", s.Trail.MaxAge)
	}
	if s.Trail.Radius < 0 {
		add("trail.radius must not be negative")
	}
	if s.Trail.ForceScale < 0 || s.Trail.ForceCap < 0 {
		add("trail.forceScale and trail.forceCap must not be negative")
	}

	if s.Field.GradientCount < 1 || s.Field.GradientCount > core.MaxGradientCount {
		add("field.gradientCount must be in 1..%d, got %d", core.MaxGradientCount, s.Field.GradientCount)
	}
	colors := map[string][3]float32{
		"color1":   s.Field.Color1,
		"color2":   s.Field.Color2,
		"darkBase": s.Field.DarkBase,
	}
	for _, name := range []string{"color1", "color2", "darkBase"} {
		if !core.RGB(colors[name]).Valid() {
			add("field.%s components must be in [0,1], got %v", name, colors[name])
		}
	}
	if s.Field.GradientSize <= 0 {
		add("field.gradientSize must be positive")
	}

	if _, err := mount.ParseScope(s.Host.Scope); err != nil {
		add("host.scope must be window or container, got %q", s.Host.Scope)
	}
	if s.Host.ContainerInset < 0 {
		add("host.containerInset must not be negative")
	}
	if s.Host.MaxFrameDelta != "" {
		if d, err := time.ParseDuration(s.Host.MaxFrameDelta); err != nil || d <= 0 {
			add("host.maxFrameDelta must be a positive duration, got %q", s.Host.MaxFrameDelta)
		}
	}

	switch s.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", s.Logging.Level)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// TrailOptions converts the trail section
func (s *Settings) TrailOptions() core.TrailOptions {
	return core.TrailOptions{
		TextureSize: s.Trail.TextureSize,
		MaxAge:      s.Trail.MaxAge,
		Radius:      s.Trail.Radius,
		ForceScale:  s.Trail.ForceScale,
		ForceCap:    s.Trail.ForceCap,
	}
}

// FieldParams converts the field section
func (s *Settings) FieldParams() core.FieldParams {
	f := s.Field
	return core.FieldParams{
		Color1:            f.Color1,
		Color2:            f.Color2,
		DarkBase:          f.DarkBase,
		Speed:             f.Speed,
		Intensity:         f.Intensity,
		GrainIntensity:    f.GrainIntensity,
		GradientSize:      f.GradientSize,
		GradientCount:     f.GradientCount,
		Color1Weight:      f.Color1Weight,
		Color2Weight:      f.Color2Weight,
		DisplacementScale: f.DisplacementScale,
		BlendFloor:        f.BlendFloor,
	}
}

// Scope returns the parsed host scope; Validate guarantees it parses
func (s *Settings) Scope() mount.Scope {
	scope, _ := mount.ParseScope(s.Host.Scope)
	return scope
}

// GetMaxFrameDelta returns host.maxFrameDelta, the default when unset
func (s *Settings) GetMaxFrameDelta() time.Duration {
	if d, err := time.ParseDuration(s.Host.MaxFrameDelta); err == nil && d > 0 {
		return d
	}
	return mount.DefaultMaxFrameDelta
}

// MountOptions assembles controller options from the settings
func (s *Settings) MountOptions() mount.Options {
	return mount.Options{
		Scope:         s.Scope(),
		Trail:         s.TrailOptions(),
		Params:        s.FieldParams(),
		MaxFrameDelta: s.GetMaxFrameDelta(),
	}
}
