package math

import (
	"bytes"
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// SceneUniforms is the scene-wide uniform block. The layout follows std140:
// the trailing vec3 occupies a full vec4 slot.
type SceneUniforms struct {
	Model  mgl32.Mat4
	View   mgl32.Mat4
	Proj   mgl32.Mat4
	Normal mgl32.Vec4
}

// MaterialUniforms is the per-material constant block.
type MaterialUniforms struct {
	Diffuse   mgl32.Vec4
	Specular  mgl32.Vec4
	Shininess float32
	_         [3]float32
}

const (
	sceneFovY = 45.0
	sceneNear = 0.1
	sceneFar  = 10.0
)

// NewSceneUniforms computes the scene block for the given animation time (seconds)
// and framebuffer aspect ratio.
func NewSceneUniforms(seconds float64, width, height uint32) SceneUniforms {
	model := mgl32.HomogRotate3D(mgl32.DegToRad(90), mgl32.Vec3{1, 0, 0}).
		Mul4(mgl32.HomogRotate3D(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}))

	aspect := float32(1)
	if height != 0 {
		aspect = float32(width) / float32(height)
	}

	period := float32(stdmath.Mod(seconds, 4.0))
	spin := mgl32.HomogRotate3D(period*mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	normal := spin.Mul4x1(mgl32.Vec4{1, 1, 1, 1})
	normal[3] = 0

	return SceneUniforms{
		Model:  model,
		View:   mgl32.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1),
		Proj:   Perspective(mgl32.DegToRad(sceneFovY), aspect, sceneNear, sceneFar),
		Normal: normal,
	}
}

// Perspective builds a right handed projection with a [0,1] depth range and
// the Y axis pointing down in clip space.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1.0 / stdmath.Tan(float64(fovy)/2.0))
	fmn := far - near
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, -f, 0, 0,
		0, 0, -far / fmn, -1,
		0, 0, -(far * near) / fmn, 0,
	}
}

func (u SceneUniforms) Bytes() []byte {
	return packLittleEndian(u)
}

func (u MaterialUniforms) Bytes() []byte {
	return packLittleEndian(u)
}

func packLittleEndian(data interface{}) []byte {
	buf := &bytes.Buffer{}
	// Fixed-size float32 structs cannot fail to encode.
	_ = binary.Write(buf, binary.LittleEndian, data)
	return buf.Bytes()
}
