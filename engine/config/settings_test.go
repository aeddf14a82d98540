package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, uint32(100), s.DescriptorPool.UniformBuffers)
	assert.Equal(t, uint32(100), s.DescriptorPool.CombinedImageSamplers)
	assert.Equal(t, [4]float32{0.3, 0.5, 0.5, 1.0}, s.Renderer.ClearColor)
	assert.Equal(t, time.Second, s.Renderer.AcquireTimeout.Duration)
	assert.Equal(t, "triangle", s.Scene.Template)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vista.toml")
	doc := `
log_level = "debug"

[window]
width = 800
height = 600

[renderer]
present_mode = "fifo"
acquire_timeout = "250ms"

[descriptor_pool]
uniform_buffers = 8
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(800), s.Window.Width)
	assert.Equal(t, uint32(600), s.Window.Height)
	assert.Equal(t, "Vista", s.Window.Title)
	assert.Equal(t, "fifo", s.Renderer.PresentMode)
	assert.Equal(t, 250*time.Millisecond, s.Renderer.AcquireTimeout.Duration)
	assert.Equal(t, uint32(8), s.DescriptorPool.UniformBuffers)
	assert.Equal(t, uint32(100), s.DescriptorPool.CombinedImageSamplers)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "colour = 1\n"},
		{"zero width", "[window]\nwidth = 0\n"},
		{"present mode", "[renderer]\npresent_mode = \"vsync\"\n"},
		{"bad duration", "[renderer]\nacquire_timeout = \"soon\"\n"},
		{"workers", "workers = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vista.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	s := Default()
	s.Window.Title = "round trip"
	data, err := s.Encode()
	require.NoError(t, err)

	back := Default()
	require.NoError(t, Decode(data, back))
	assert.Equal(t, s, back)
}
