package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/docchat/internal/core"
)

// LocalClient stores uploads under a directory on disk. Locations are file paths.
type LocalClient struct {
	root string
}

func NewLocalClient(dir string) (*LocalClient, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: UPLOAD_DIR not set", core.ErrInvalidConfiguration)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalClient{root: root}, nil
}

// resolve rejects locations that escape the upload directory.
func (c *LocalClient) resolve(location string) (string, error) {
	p, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	if p != c.root && !strings.HasPrefix(p, c.root+string(filepath.Separator)) {
		return "", fmt.Errorf("location %q is outside %s", location, c.root)
	}
	return p, nil
}

func (c *LocalClient) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	p, err := c.resolve(filepath.Join(c.root, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return p, nil
}

func (c *LocalClient) DeleteFile(_ context.Context, location string) error {
	p, err := c.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func (c *LocalClient) GetFile(_ context.Context, location string) ([]byte, error) {
	p, err := c.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("upload %s: %w", location, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

var _ core.ObjectClient = (*LocalClient)(nil)
