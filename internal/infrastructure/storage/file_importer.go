package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// LocalFileImporter writes bundled attachments under
// <root>/<tenant>/<key> with the metadata next to it in <key>.meta.json.
type LocalFileImporter struct {
	root     string
	tenantID string
}

func NewLocalFileImporter(root, tenantID string) *LocalFileImporter {
	return &LocalFileImporter{root: root, tenantID: tenantID}
}

var _ ports.FileImporter = (*LocalFileImporter)(nil)

func (l *LocalFileImporter) Import(ctx context.Context, key string, file models.FileAttachment) error {
	if !safeKey.MatchString(key) {
		return apperrors.NewValidationError("files", fmt.Sprintf("invalid file key %q", key))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	contents, err := base64.StdEncoding.DecodeString(file.Contents)
	if err != nil {
		return apperrors.NewValidationError("files", fmt.Sprintf("file %s is not valid base64: %v", key, err))
	}

	dir := filepath.Join(l.root, l.tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, key), contents, 0o644); err != nil {
		return fmt.Errorf("failed to save file %s: %w", key, err)
	}
	if len(file.Meta) > 0 {
		if err := os.WriteFile(filepath.Join(dir, key+".meta.json"), file.Meta, 0o644); err != nil {
			return fmt.Errorf("failed to save metadata of %s: %w", key, err)
		}
	}
	log.Printf("📎 Imported file %s (%d bytes) for tenant %s", key, len(contents), l.tenantID)
	return nil
}
