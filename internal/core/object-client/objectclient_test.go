package objectclient

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

func TestLocalClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	loc, err := c.UploadFile(ctx, "user_01/abc_notes.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "abc_notes.pdf", filepath.Base(loc))

	data, err := c.GetFile(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, c.DeleteFile(ctx, loc))
	_, err = c.GetFile(ctx, loc)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, c.DeleteFile(ctx, loc))
}

func TestLocalClient_RejectsEscapes(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	_, err = c.UploadFile(ctx, "../outside.pdf", []byte("x"), "application/pdf")
	assert.Error(t, err)

	_, err = c.GetFile(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestParseS3URL(t *testing.T) {
	s := &S3Client{bucket: "docchat-docs", region: "us-east-2"}
	loc := s.objectURL("user_01/x.pdf")

	bucket, key, err := parseS3URL(loc)
	require.NoError(t, err)
	assert.Equal(t, "docchat-docs", bucket)
	assert.Equal(t, "user_01/x.pdf", key)

	_, _, err = parseS3URL("/tmp/uploads/x.pdf")
	assert.Error(t, err)
}

func TestNew_SelectsBackend(t *testing.T) {
	c := cfg.Defaults()
	c.UploadDir = t.TempDir()
	oc, err := New(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, &LocalClient{}, oc)

	c.StorageBackend = "ftp"
	_, err = New(context.Background(), c)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}
