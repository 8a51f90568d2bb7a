package storage

import (
	"context"
	"os"
)

type FileProductState struct {
	FilePath string
}

func NewFileProductState(filePath string) *FileProductState {
	return &FileProductState{FilePath: filePath}
}

func (p *FileProductState) Load(ctx context.Context) ([]byte, error) {
	return os.ReadFile(p.FilePath)
}
