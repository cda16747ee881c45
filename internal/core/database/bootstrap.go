package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/core"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// EnsureBootstrapped creates the schema once and checks that the stored
// embedding dimension matches the configured one.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docchat_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, embedDim)
	}

	var storedDim int
	err = db.QueryRowContext(ctxBoot, `SELECT embed_dim FROM docchat_meta WHERE version = $1`, schemaVersion).Scan(&storedDim)
	if errors.Is(err, sql.ErrNoRows) {
		return runBootstrap(ctxBoot, db, embedDim)
	}
	if err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if storedDim != embedDim {
		return fmt.Errorf("%w: schema built for %d-dimensional embeddings, EMBED_DIM is %d",
			core.ErrInvalidConfiguration, storedDim, embedDim)
	}

	logrus.WithField("version", schemaVersion).Debug("schema already bootstrapped")
	return nil
}

func renderBootstrap(embedDim int) (string, error) {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return "", fmt.Errorf("read initdb.sql: %w", err)
	}
	return strings.ReplaceAll(string(sqlBytes), "{{EMBED_DIM}}", strconv.Itoa(embedDim)), nil
}

func runBootstrap(ctx context.Context, db *sql.DB, embedDim int) error {
	script, err := renderBootstrap(embedDim)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}

	logrus.WithFields(logrus.Fields{"version": schemaVersion, "embed_dim": embedDim}).Info("schema bootstrapped")
	return nil
}
