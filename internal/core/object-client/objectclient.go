package objectclient

import (
	"context"
	"fmt"

	cfg "github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// New returns the object store selected by STORAGE_BACKEND.
func New(ctx context.Context, c *cfg.Config) (core.ObjectClient, error) {
	switch c.StorageBackend {
	case "local":
		return NewLocalClient(c.UploadDir)
	case "s3":
		return NewS3Client(ctx, c)
	default:
		return nil, fmt.Errorf("%w: unknown STORAGE_BACKEND %q", core.ErrInvalidConfiguration, c.StorageBackend)
	}
}
