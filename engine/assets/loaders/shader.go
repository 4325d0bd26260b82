package loaders

import (
	"fmt"
	"os"
	"path/filepath"
)

type ShaderLoader struct{}

// Load reads a compiled SPIR-V module. The code is handed to the backend as is.
func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("shader %s is not SPIR-V: %d bytes", path, len(data))
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}
