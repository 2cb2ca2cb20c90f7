// Package software renders the liquid field on the CPU. It follows the GLSL
// program of the OpenGL backend step for step and is used by the terminal
// host, the snapshot command and tests that need pixels without a context.
package software

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"liquidfield/core"
)

// Shade evaluates the field at uv (origin bottom-left, [0,1] on both axes)
// and returns an opaque color. Components are not clamped after grain, same
// as the fragment shader before framebuffer conversion.
func Shade(u *core.Uniforms, uv mgl64.Vec2) mgl64.Vec3 {
	if u.Trail != nil {
		tex := u.Trail.Sample(uv[0], uv[1])
		disp := float64(u.DisplacementScale) * tex[2]
		uv = uv.Add(mgl64.Vec2{-(tex[0]*2 - 1) * disp, -(tex[1]*2 - 1) * disp})
	}

	color := gradientColor(u, uv)
	g := grain(uv, u.Resolution, float64(u.Time)) * float64(u.GrainIntensity)
	return color.Add(mgl64.Vec3{g, g, g})
}

func gradientColor(u *core.Uniforms, uv mgl64.Vec2) mgl64.Vec3 {
	t := float64(u.Time)
	s := float64(u.Speed)
	size := float64(u.GradientSize)
	c1, c2 := vec3(u.Color1), vec3(u.Color2)
	w1, w2 := float64(u.Color1Weight), float64(u.Color2Weight)

	var color mgl64.Vec3
	n := u.GradientPoints()
	for i := 0; i < n; i++ {
		fi := float64(i)
		center := mgl64.Vec2{
			0.5 + math.Sin(t*s*(0.4+fi*0.02))*0.4,
			0.5 + math.Cos(t*s*(0.5+fi*0.03))*0.4,
		}
		influence := 1 - smoothstep(0, size, uv.Sub(center).Len())
		pulse := 0.5 + 0.5*math.Sin(t*s*(0.8+fi*0.1))

		base, weight := c1, w1
		if i%2 == 1 {
			base, weight = c2, w2
		}
		color = color.Add(base.Mul(influence * pulse * weight))
	}

	intensity := float64(u.Intensity)
	for i := range color {
		color[i] = clamp(color[i]*intensity, 0, 1)
	}

	amount := math.Max(color.Len(), float64(u.BlendFloor))
	return mix(vec3(u.DarkBase), color, amount)
}

func grain(uv mgl64.Vec2, res [2]float32, t float64) float64 {
	gx := uv[0]*float64(res[0])*0.5 + t
	gy := uv[1]*float64(res[1])*0.5 + t
	return fract(math.Sin(gx*12.9898+gy*78.233)*43758.5453)*2 - 1
}

func smoothstep(edge0, edge1, x float64) float64 {
	if edge1 == edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func mix(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

func fract(x float64) float64 {
	return x - math.Floor(x)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func vec3(c core.RGB) mgl64.Vec3 {
	return mgl64.Vec3{float64(c[0]), float64(c[1]), float64(c[2])}
}
