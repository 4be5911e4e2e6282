package scene

// Shared by chunk meshes and instance batches. aOffset is only read when
// uInstanced is set.
const blockVertexShader = `#version 410 core
layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aTexCoord;
layout(location = 3) in float aShade;
layout(location = 4) in vec3 aOffset;

uniform mat4 uViewProj;
uniform int uInstanced;

out vec2 vTexCoord;
out float vShade;
out vec3 vNormal;

void main() {
    vec3 pos = aPosition;
    if (uInstanced == 1) {
        pos += aOffset;
    }
    gl_Position = uViewProj * vec4(pos, 1.0);
    vTexCoord = aTexCoord;
    vShade = aShade;
    vNormal = aNormal;
}
`

// Blocks have no image textures: each texture name maps to a palette colour
// and block edges are darkened from the repeating texture coordinates.
const blockFragmentShader = `#version 410 core
in vec2 vTexCoord;
in float vShade;
in vec3 vNormal;

uniform vec3 uColor;
uniform vec3 uLightDir;
uniform float uAmbient;

out vec4 FragColor;

void main() {
    vec2 f = fract(vTexCoord);
    float d = min(min(f.x, f.y), min(1.0 - f.x, 1.0 - f.y));
    float edge = mix(0.78, 1.0, step(0.035, d));
    float diffuse = max(dot(normalize(vNormal), normalize(uLightDir)), 0.0);
    float light = uAmbient + (1.0 - uAmbient) * diffuse;
    FragColor = vec4(uColor * vShade * edge * mix(0.85, 1.0, light), 1.0);
}
`

const lineVertexShader = `#version 410 core
layout(location = 0) in vec3 aPosition;
uniform mat4 uViewProj;
void main() {
    gl_Position = uViewProj * vec4(aPosition, 1.0);
}
`

const lineFragmentShader = `#version 410 core
uniform vec3 uColor;
out vec4 FragColor;
void main() {
    FragColor = vec4(uColor, 1.0);
}
`
