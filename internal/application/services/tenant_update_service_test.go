package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

func TestTenantUpdateService_UpdatesTenantsRunningTheApp(t *testing.T) {
	app := def("A1", models.TypeApplication, "Contacts App", `{}`)
	envs := map[string]*testEnv{
		"t1": newTestEnv(t, "t1", app),
		"t2": newTestEnv(t, "t2"),
		"t3": newTestEnv(t, "t3", app),
	}
	tenants := registryFor(envs)
	pipeline := NewImportPipeline(testOptions(), &fakeNotifier{}, NewEventBus())
	svc := NewTenantUpdateService(fakeDirectory{"t1", "t2", "t3", "gone"}, tenants, pipeline)

	result, err := svc.UpdateApplication(context.Background(), contactBundle())
	require.NoError(t, err)

	assert.Equal(t, "A1", result.ApplicationID)
	assert.Equal(t, []string{"t1", "t3"}, result.Updated)
	assert.Contains(t, result.Failed, "gone")
	assert.NotContains(t, result.Failed, "t2")

	assert.Contains(t, envs["t1"].builder.recorded(), "query:Q1")
	assert.Contains(t, envs["t3"].builder.recorded(), "query:Q1")
	assert.Empty(t, envs["t2"].builder.recorded())
	assert.Equal(t, 0, envs["t2"].repo.count(), "tenants without the app are untouched")
}

func TestTenantUpdateService_RequiresAnApplication(t *testing.T) {
	svc := NewTenantUpdateService(fakeDirectory{}, registryFor(nil), nil)

	_, err := svc.UpdateApplication(context.Background(), &models.Bundle{Definitions: []*models.Definition{
		def("O1", models.TypeObject, "Lead", `{}`),
	}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.UpdateApplication(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCloneBundle(t *testing.T) {
	b := contactBundle()
	b.Roles = []*models.Role{{UUID: "r-1", Name: "Sales"}}

	c := cloneBundle(b)
	c.Definitions[0].Name = "changed"
	c.Roles[0].Name = "changed"

	assert.Equal(t, "Contacts App", b.Definitions[0].Name)
	assert.Equal(t, "Sales", b.Roles[0].Name)
	assert.Len(t, c.Definitions, len(b.Definitions))
}
