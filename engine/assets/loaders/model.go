package loaders

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
)

// Material is the part of an MTL material the renderer binds.
type Material struct {
	Name      string
	Diffuse   mgl32.Vec4
	Specular  mgl32.Vec4
	Shininess float32
	// DiffuseMap is the path of the diffuse texture, empty when the material has none.
	DiffuseMap string
}

// Uniforms is the material constant block.
func (m Material) Uniforms() math.MaterialUniforms {
	return math.MaterialUniforms{
		Diffuse:   m.Diffuse,
		Specular:  m.Specular,
		Shininess: m.Shininess,
	}
}

// DefaultMaterial is used by faces without a material.
func DefaultMaterial() Material {
	return Material{
		Name:      "default",
		Diffuse:   mgl32.Vec4{1, 1, 1, 1},
		Specular:  mgl32.Vec4{0, 0, 0, 1},
		Shininess: 1,
	}
}

// Submesh is an indexed triangle list drawn with one material.
type Submesh struct {
	Vertices []math.Vertex
	Indices  []uint32
	Material Material
}

type Model struct {
	Name      string
	Path      string
	Submeshes []Submesh
}

// ModelLoader decodes Wavefront OBJ files. The MTL library next to the model,
// with the same base name, is used when present.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string) (interface{}, error) {
	return ml.LoadModel(path)
}

func (ml *ModelLoader) LoadModel(path string) (*Model, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "opening model %s", path), core.ErrAssetLoad)
	}
	defer meshFile.Close()

	var matFile io.Reader = strings.NewReader("")
	mtlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if f, err := os.Open(mtlPath); err == nil {
		defer f.Close()
		matFile = f
	}

	decoder, err := obj.DecodeReader(meshFile, matFile)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding model %s", path), core.ErrAssetLoad)
	}
	for _, w := range decoder.Warnings {
		core.LogWarn("%s: %s", path, w)
	}

	model := &Model{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
	}
	builders := make(map[string]*submeshBuilder)
	var order []string
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			b, ok := builders[face.Material]
			if !ok {
				b = &submeshBuilder{
					decoder:  decoder,
					unique:   make(map[vertexKey]uint32),
					material: material(decoder, face.Material, filepath.Dir(path)),
				}
				builders[face.Material] = b
				order = append(order, face.Material)
			}
			// Faces are triangulated as fans around their first vertex.
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range [3]int{0, i - 1, i} {
					if err := b.addVertex(face, corner); err != nil {
						return nil, errors.Mark(errors.Wrapf(err, "model %s", path), core.ErrAssetLoad)
					}
				}
			}
		}
	}

	for _, name := range order {
		b := builders[name]
		if len(b.indices) == 0 {
			continue
		}
		model.Submeshes = append(model.Submeshes, Submesh{
			Vertices: b.vertices,
			Indices:  b.indices,
			Material: b.material,
		})
	}
	if len(model.Submeshes) == 0 {
		return nil, errors.Mark(errors.Newf("model %s has no faces", path), core.ErrAssetLoad)
	}
	core.LogDebug("loaded model %s with %d submeshes", path, len(model.Submeshes))
	return model, nil
}

func material(decoder *obj.Decoder, name, dir string) Material {
	m := DefaultMaterial()
	mat, ok := decoder.Materials[name]
	if !ok || mat == nil {
		return m
	}
	m.Name = name
	m.Diffuse = mgl32.Vec4{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B, 1}
	m.Specular = mgl32.Vec4{mat.Specular.R, mat.Specular.G, mat.Specular.B, 1}
	if mat.Shininess > 0 {
		m.Shininess = mat.Shininess
	}
	if mat.MapKd != "" {
		m.DiffuseMap = filepath.Join(dir, mat.MapKd)
	}
	return m
}

type vertexKey struct {
	position int
	uv       int
}

type submeshBuilder struct {
	decoder  *obj.Decoder
	unique   map[vertexKey]uint32
	vertices []math.Vertex
	indices  []uint32
	material Material
}

func (b *submeshBuilder) addVertex(face obj.Face, faceIndex int) error {
	key := vertexKey{position: face.Vertices[faceIndex], uv: -1}
	if faceIndex < len(face.Uvs) {
		key.uv = face.Uvs[faceIndex]
	}
	if key.position < 0 || key.position*3+2 >= len(b.decoder.Vertices) {
		return errors.Newf("face refers to vertex %d of %d", key.position+1, len(b.decoder.Vertices)/3)
	}

	index, exists := b.unique[key]
	if !exists {
		vert := math.Vertex{
			Position: mgl32.Vec3{
				b.decoder.Vertices[key.position*3],
				b.decoder.Vertices[key.position*3+1],
				b.decoder.Vertices[key.position*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}
		if key.uv >= 0 && key.uv*2+1 < len(b.decoder.Uvs) {
			// OBJ puts the texture origin bottom left, Vulkan top left.
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}

		index = uint32(len(b.vertices))
		b.vertices = append(b.vertices, vert)
		b.unique[key] = index
	}

	b.indices = append(b.indices, index)
	return nil
}
