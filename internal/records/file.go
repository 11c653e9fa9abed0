package records

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/finance-sankey/internal/domain"
)

// FileSource reads a JSON record array from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Load(ctx context.Context) ([]domain.Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("FileSource: read %q: %w", s.Path, err)
	}
	return Decode(data)
}

func (s *FileSource) String() string {
	return s.Path
}
