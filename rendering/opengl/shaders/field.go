package shaders

// FieldVertexShader places the unit quad with the camera matrices and passes
// its texture coordinates through.
const FieldVertexShader = `#version 410 core

layout (location = 0) in vec3 position;
layout (location = 1) in vec2 texCoord;

uniform mat4 uProjection;
uniform mat4 uView;
uniform mat4 uModel;

out vec2 vUv;

void main() {
    vUv = texCoord;
    gl_Position = uProjection * uView * uModel * vec4(position, 1.0);
}
`

// FieldFragmentShader displaces the lookup by the trail texture, sums the
// orbiting gradients, blends toward the dark base and adds grain.
const FieldFragmentShader = `#version 410 core

const int MAX_GRADIENTS = 16;

uniform float uTime;
uniform vec2 uResolution;
uniform vec3 uColor1;
uniform vec3 uColor2;
uniform vec3 uDarkBase;
uniform float uSpeed;
uniform float uIntensity;
uniform float uGrainIntensity;
uniform float uGradientSize;
uniform int uGradientCount;
uniform float uColor1Weight;
uniform float uColor2Weight;
uniform float uDisplacementScale;
uniform float uBlendFloor;
uniform sampler2D uTrailTexture;

in vec2 vUv;
out vec4 outColor;

float grain(vec2 uv, float time) {
    vec2 grainUv = uv * uResolution * 0.5;
    return fract(sin(dot(grainUv + time, vec2(12.9898, 78.233))) * 43758.5453) * 2.0 - 1.0;
}

vec3 gradientColor(vec2 uv, float time) {
    float s = uSpeed;
    vec3 color = vec3(0.0);
    for (int i = 0; i < MAX_GRADIENTS; i++) {
        if (i >= uGradientCount) {
            break;
        }
        float fi = float(i);
        vec2 c = vec2(0.5 + sin(time * s * (0.4 + fi * 0.02)) * 0.4,
                      0.5 + cos(time * s * (0.5 + fi * 0.03)) * 0.4);
        float influence = 1.0 - smoothstep(0.0, uGradientSize, length(uv - c));
        float pulse = 0.5 + 0.5 * sin(time * s * (0.8 + fi * 0.1));
        bool even = (i % 2) == 0;
        color += (even ? uColor1 : uColor2) * influence * pulse * (even ? uColor1Weight : uColor2Weight);
    }
    color = clamp(color * uIntensity, 0.0, 1.0);
    return mix(uDarkBase, color, max(length(color), uBlendFloor));
}

void main() {
    vec2 uv = vUv;
    // Trail rows are uploaded top row first
    vec4 trail = texture(uTrailTexture, vec2(uv.x, 1.0 - uv.y));
    uv += -(trail.rg * 2.0 - 1.0) * uDisplacementScale * trail.b;
    vec3 color = gradientColor(uv, uTime);
    color += grain(uv, uTime) * uGrainIntensity;
    outColor = vec4(color, 1.0);
}
`
