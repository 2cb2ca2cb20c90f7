package core

// Shader uniform names shared by every backend
const (
	UniformTime              = "uTime"
	UniformResolution        = "uResolution"
	UniformColor1            = "uColor1"
	UniformColor2            = "uColor2"
	UniformDarkBase          = "uDarkBase"
	UniformSpeed             = "uSpeed"
	UniformIntensity         = "uIntensity"
	UniformGrainIntensity    = "uGrainIntensity"
	UniformGradientSize      = "uGradientSize"
	UniformGradientCount     = "uGradientCount"
	UniformColor1Weight      = "uColor1Weight"
	UniformColor2Weight      = "uColor2Weight"
	UniformDisplacementScale = "uDisplacementScale"
	UniformBlendFloor        = "uBlendFloor"
	UniformTrailTexture      = "uTrailTexture"
)

// MaxGradientCount bounds the blob loop in the shader
const MaxGradientCount = 16

// FieldParams are the presentation parameters of the color field
type FieldParams struct {
	Color1            RGB
	Color2            RGB
	DarkBase          RGB
	Speed             float32
	Intensity         float32
	GrainIntensity    float32
	GradientSize      float32
	GradientCount     int
	Color1Weight      float32
	Color2Weight      float32
	DisplacementScale float32
	BlendFloor        float32
}

// DefaultFieldParams returns the reference look: an emerald accent over a
// deep navy base.
func DefaultFieldParams() FieldParams {
	return FieldParams{
		Color1:            RGB{0.06, 0.72, 0.5},
		Color2:            RGB{0.02, 0.03, 0.08},
		DarkBase:          RGB{0.01, 0.02, 0.05},
		Speed:             1.2,
		Intensity:         2.5,
		GrainIntensity:    0.08,
		GradientSize:      0.5,
		GradientCount:     8,
		Color1Weight:      0.6,
		Color2Weight:      1.8,
		DisplacementScale: 0.5,
		BlendFloor:        0.1,
	}
}

// Uniforms is the full uniform set of one mounted field
type Uniforms struct {
	FieldParams
	Time       float32
	Resolution [2]float32
	Trail      *TrailTexture
}

// NewUniforms builds a uniform set at time zero
func NewUniforms(params FieldParams, trail *TrailTexture) *Uniforms {
	return &Uniforms{
		FieldParams: params,
		Resolution:  [2]float32{1, 1},
		Trail:       trail,
	}
}

// GradientPoints returns the gradient count clamped to [1, MaxGradientCount]
func (u *Uniforms) GradientPoints() int {
	n := u.GradientCount
	if n < 1 {
		return 1
	}
	if n > MaxGradientCount {
		return MaxGradientCount
	}
	return n
}

// Each visits every uniform by shader name in a stable order. Values are
// float32, [2]float32, RGB, int32 or *TrailTexture.
func (u *Uniforms) Each(fn func(name string, value any)) {
	fn(UniformTime, u.Time)
	fn(UniformResolution, u.Resolution)
	fn(UniformColor1, u.Color1)
	fn(UniformColor2, u.Color2)
	fn(UniformDarkBase, u.DarkBase)
	fn(UniformSpeed, u.Speed)
	fn(UniformIntensity, u.Intensity)
	fn(UniformGrainIntensity, u.GrainIntensity)
	fn(UniformGradientSize, u.GradientSize)
	fn(UniformGradientCount, int32(u.GradientPoints()))
	fn(UniformColor1Weight, u.Color1Weight)
	fn(UniformColor2Weight, u.Color2Weight)
	fn(UniformDisplacementScale, u.DisplacementScale)
	fn(UniformBlendFloor, u.BlendFloor)
	fn(UniformTrailTexture, u.Trail)
}

// Named returns the uniform set as a map keyed by shader name
func (u *Uniforms) Named() map[string]any {
	m := make(map[string]any, 15)
	u.Each(func(name string, value any) {
		m[name] = value
	})
	return m
}
