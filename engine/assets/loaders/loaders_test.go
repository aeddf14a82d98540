package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/vista/engine/core"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadSPIRV(t *testing.T) {
	dir := t.TempDir()
	loader := &BinaryLoader{}

	path := writeFile(t, dir, "triangle_vert.spv", []byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	words, err := loader.LoadSPIRV(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = loader.LoadSPIRV(filepath.Join(dir, "missing_frag.spv"))
	assert.True(t, errors.Is(err, core.ErrShaderMissing))

	empty := writeFile(t, dir, "empty_frag.spv", nil)
	_, err = loader.LoadSPIRV(empty)
	assert.True(t, errors.Is(err, core.ErrShaderMissing))

	odd := writeFile(t, dir, "odd_frag.spv", []byte{1, 2, 3, 4, 5})
	_, err = loader.LoadSPIRV(odd)
	assert.True(t, errors.Is(err, core.ErrShaderInvalid))
}

func TestDecodeTexture(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	src.Set(1, 2, color.NRGBA{R: 255, A: 255})

	pngPath := filepath.Join(dir, "red.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	bmpPath := filepath.Join(dir, "red.bmp")
	f, err = os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, src))
	require.NoError(t, f.Close())

	loader := &TextureLoader{}
	for _, path := range []string{pngPath, bmpPath} {
		rgba, err := loader.Decode(path)
		require.NoError(t, err, path)
		assert.Equal(t, image.Rect(0, 0, 2, 3), rgba.Bounds())
		assert.Equal(t, 8, rgba.Stride)
		assert.Equal(t, color.RGBA{R: 255, A: 255}, rgba.RGBAAt(1, 2))
	}

	_, err = loader.Decode(filepath.Join(dir, "missing.png"))
	assert.True(t, errors.Is(err, core.ErrAssetLoad))

	garbage := writeFile(t, dir, "garbage.png", []byte("not an image"))
	_, err = loader.Decode(garbage)
	assert.True(t, errors.Is(err, core.ErrAssetLoad))
}

func TestToRGBAOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(4, 4, 6, 6))
	src.SetRGBA(5, 5, color.RGBA{G: 255, A: 255})

	out := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(1, 1))
}

const quadOBJ = `mtllib quad.mtl
o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl red
f 1/1 2/2 3/3 4/4
`

const quadMTL = `newmtl red
Kd 1 0 0
Ks 0.5 0.5 0.5
Ns 32
map_Kd red.png
`

func TestLoadModel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quad.obj", []byte(quadOBJ))
	writeFile(t, dir, "quad.mtl", []byte(quadMTL))

	model, err := (&ModelLoader{}).LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "quad", model.Name)
	require.Len(t, model.Submeshes, 1)

	sub := model.Submeshes[0]
	assert.Len(t, sub.Vertices, 4, "shared corners are deduplicated")
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, sub.Indices)
	assert.Equal(t, mgl32.Vec2{0, 1}, sub.Vertices[0].TexCoord, "v is flipped")
	assert.Equal(t, mgl32.Vec3{1, -1, 0}, sub.Vertices[1].Position)

	assert.Equal(t, "red", sub.Material.Name)
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, sub.Material.Diffuse)
	assert.Equal(t, float32(32), sub.Material.Shininess)
	assert.Equal(t, filepath.Join(dir, "red.png"), sub.Material.DiffuseMap)
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := (&ModelLoader{}).LoadModel(filepath.Join(dir, "missing.obj"))
	assert.True(t, errors.Is(err, core.ErrAssetLoad))

	empty := writeFile(t, dir, "empty.obj", []byte("o nothing\nv 0 0 0\n"))
	_, err = (&ModelLoader{}).LoadModel(empty)
	assert.True(t, errors.Is(err, core.ErrAssetLoad))

	dangling := writeFile(t, dir, "dangling.obj", []byte("v 0 0 0\nf 1 2 3\n"))
	var model *Model
	require.NotPanics(t, func() { model, err = (&ModelLoader{}).LoadModel(dangling) })
	require.Error(t, err)
	assert.Nil(t, model)
	assert.True(t, errors.Is(err, core.ErrAssetLoad))
	assert.Contains(t, err.Error(), "dangling.obj")
}
