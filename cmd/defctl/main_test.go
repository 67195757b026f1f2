package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

type fakeBackend struct {
	tenant   string
	imported *models.Bundle
	roles    []string
	closed   bool
}

func (f *fakeBackend) Import(_ context.Context, tenantID string, bundle *models.Bundle) (*services.ImportResult, error) {
	f.tenant = tenantID
	f.imported = bundle
	return &services.ImportResult{
		Developer: 1,
		Errors: []*models.ImportError{{
			Audience: models.AudienceDeveloper, Phase: "persist", ItemID: "O1", Message: "deadlock retries exhausted",
		}},
	}, nil
}

func (f *fakeBackend) ForRoles(_ context.Context, tenantID string, roleIDs []string) ([]byte, error) {
	f.tenant = tenantID
	f.roles = roleIDs
	return []byte(`[{"id":"A1"}]`), nil
}

func (f *fakeBackend) CheckUpdate(_ context.Context, tenantID string) (int64, error) {
	f.tenant = tenantID
	return 1700000000000, nil
}

func (f *fakeBackend) MobileCheckUpdate(_ context.Context, tenantID, appID string) (int64, error) {
	f.tenant = tenantID
	return 1700000000001, nil
}

func (f *fakeBackend) Export(_ context.Context, tenantID, appID string) (*services.AppExport, error) {
	f.tenant = tenantID
	if appID != "A1" {
		return nil, apperrors.NewNotFoundError("application", appID)
	}
	return &services.AppExport{AbVersion: "0.0.0", Filename: "app_Sales_20240309", Date: "20240309"}, nil
}

func execute(t *testing.T, fake *fakeBackend, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context, string) (*backend, error) {
		return &backend{definitions: fake, apps: fake, close: func() error { fake.closed = true; return nil }}, nil
	}
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"definitions":[{"id":"A1","type":"application","name":"Sales","json":{}}]}`), 0o644))

	fake := &fakeBackend{}
	out, err := execute(t, fake, "import", "--tenant", "t1", "--file", file)
	require.NoError(t, err)

	assert.Equal(t, "t1", fake.tenant)
	require.NotNil(t, fake.imported)
	assert.Equal(t, "A1", fake.imported.Definitions[0].ID)
	assert.Contains(t, out, "Imported 1 definitions into t1 (1 developer / 0 builder errors)")
	assert.Contains(t, out, "persist O1: deadlock retries exhausted")
	assert.True(t, fake.closed)
}

func TestImportCommandBadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(file, []byte(`not json`), 0o644))

	fake := &fakeBackend{}
	_, err := execute(t, fake, "import", "-t", "t1", "-f", file)
	require.Error(t, err)
	assert.Nil(t, fake.imported)
	assert.False(t, fake.closed, "nothing is opened for an unreadable bundle")
}

func TestExportCommand(t *testing.T) {
	fake := &fakeBackend{}

	out, err := execute(t, fake, "export", "-t", "t1", "--app", "A1")
	require.NoError(t, err)
	assert.Contains(t, out, `"filename": "app_Sales_20240309"`)

	target := filepath.Join(t.TempDir(), "export.json")
	out, err = execute(t, fake, "export", "-t", "t1", "--app", "A1", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported app_Sales_20240309")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"abVersion": "0.0.0"`)

	_, err = execute(t, fake, "export", "-t", "t1", "--app", "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestForRolesCommand(t *testing.T) {
	fake := &fakeBackend{}

	out, err := execute(t, fake, "for-roles", "-t", "t1", "--roles", "r-2,r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-2", "r-1"}, fake.roles)
	assert.Equal(t, `[{"id":"A1"}]`, strings.TrimSpace(out))
}

func TestCheckUpdateCommand(t *testing.T) {
	fake := &fakeBackend{}

	out, err := execute(t, fake, "check-update", "-t", "t1")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", strings.TrimSpace(out))

	out, err = execute(t, fake, "check-update", "-t", "t1", "--app", "A1")
	require.NoError(t, err)
	assert.Equal(t, "1700000000001", strings.TrimSpace(out))
}

func TestTenantFlagRequired(t *testing.T) {
	_, err := execute(t, &fakeBackend{}, "check-update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant")
}
