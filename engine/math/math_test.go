package math

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(10), Clamp(uint32(3), 10, 20))
	assert.Equal(t, uint32(20), Clamp(uint32(30), 10, 20))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestSceneUniformsLayout(t *testing.T) {
	u := NewSceneUniforms(0, 1280, 720)
	assert.Len(t, u.Bytes(), 3*64+16)
	assert.Equal(t, float32(0), u.Normal[3])
	assert.InDelta(t, 1.0, u.Normal[0], 1e-5)
	assert.InDelta(t, 1.0, u.Normal[1], 1e-5)

	// A quarter turn after one second.
	later := NewSceneUniforms(1, 1280, 720)
	assert.InDelta(t, -1.0, later.Normal[0], 1e-5)
	assert.InDelta(t, 1.0, later.Normal[1], 1e-5)

	assert.True(t, u.View.ApproxEqual(mgl32.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1)))
	assert.Less(t, u.Proj[5], float32(0), "clip space Y points down")
}

func TestSceneUniformsZeroHeight(t *testing.T) {
	u := NewSceneUniforms(0, 0, 0)
	assert.False(t, mgl32.Mat4{}.ApproxEqual(u.Proj))
}

func TestVertexLayout(t *testing.T) {
	v := Vertex{}
	assert.Equal(t, uintptr(VertexStride), unsafe.Sizeof(v))
	assert.Equal(t, uintptr(VertexColorOffset), unsafe.Offsetof(v.Color))
	assert.Equal(t, uintptr(VertexTexCoordOffset), unsafe.Offsetof(v.TexCoord))

	vertices, indices := Quad()
	assert.Len(t, VerticesBytes(vertices), 4*VertexStride)
	assert.Len(t, IndicesBytes(indices), 6*4)
	assert.Nil(t, IndicesBytes(nil))
}

func TestMaterialUniformsSize(t *testing.T) {
	assert.Len(t, MaterialUniforms{Shininess: 8}.Bytes(), 48)
}
