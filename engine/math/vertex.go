package math

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the single vertex layout every material template consumes.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

const (
	VertexStride         = 32
	VertexPositionOffset = 0
	VertexColorOffset    = 12
	VertexTexCoordOffset = 24
)

func VerticesBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return packLittleEndian(vertices)
}

func IndicesBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return packLittleEndian(indices)
}

// Quad is the textured quad drawn when no model is configured.
func Quad() ([]Vertex, []uint32) {
	vertices := []Vertex{
		{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
	}
	return vertices, []uint32{0, 1, 2, 2, 3, 0}
}
