package loaders

import (
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
)

// BinaryLoader reads SPIR-V shader binaries.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (interface{}, error) {
	return bl.LoadSPIRV(path)
}

// LoadSPIRV returns the words of a SPIR-V binary. Missing or empty files wrap
// core.ErrShaderMissing, files whose size is not a whole number of words wrap
// core.ErrShaderInvalid.
func (bl *BinaryLoader) LoadSPIRV(path string) ([]uint32, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(core.ErrShaderMissing, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	if len(buf) == 0 {
		return nil, errors.Wrapf(core.ErrShaderMissing, "%s is empty", path)
	}
	if len(buf)%4 != 0 {
		return nil, errors.Wrapf(core.ErrShaderInvalid, "%s is %d bytes long", path, len(buf))
	}
	return bytesToBytecode(buf), nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
