package rest_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// MockDefinitionService is a mock implementation of rest.DefinitionService
type MockDefinitionService struct {
	mock.Mock
}

func (m *MockDefinitionService) Import(ctx context.Context, tenantID string, bundle *models.Bundle) (*services.ImportResult, error) {
	args := m.Called(ctx, tenantID, bundle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ImportResult), args.Error(1)
}

func (m *MockDefinitionService) Create(ctx context.Context, tenantID string, def *models.Definition) (*models.Definition, error) {
	args := m.Called(ctx, tenantID, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Definition), args.Error(1)
}

func (m *MockDefinitionService) Update(ctx context.Context, tenantID, id string, patch services.DefinitionPatch) (*models.Definition, error) {
	args := m.Called(ctx, tenantID, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Definition), args.Error(1)
}

func (m *MockDefinitionService) Delete(ctx context.Context, tenantID, id string) (*models.Definition, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Definition), args.Error(1)
}

func (m *MockDefinitionService) ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]byte, error) {
	args := m.Called(ctx, tenantID, roleIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDefinitionService) ForApp(ctx context.Context, tenantID, appID string) ([]byte, error) {
	args := m.Called(ctx, tenantID, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDefinitionService) CheckUpdate(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDefinitionService) MobileCheckUpdate(ctx context.Context, tenantID, appID string) (int64, error) {
	args := m.Called(ctx, tenantID, appID)
	return args.Get(0).(int64), args.Error(1)
}

// MockAppService is a mock implementation of rest.AppService
type MockAppService struct {
	mock.Mock
}

func (m *MockAppService) Export(ctx context.Context, tenantID, appID string) (*services.AppExport, error) {
	args := m.Called(ctx, tenantID, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AppExport), args.Error(1)
}

func (m *MockAppService) MobileConfig(ctx context.Context, tenantID, appID string) (*services.MobileConfig, error) {
	args := m.Called(ctx, tenantID, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MobileConfig), args.Error(1)
}

func (m *MockAppService) ObjectInformation(ctx context.Context, tenantID, objectID string) (*services.ObjectInformation, error) {
	args := m.Called(ctx, tenantID, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ObjectInformation), args.Error(1)
}

func (m *MockAppService) FieldInformation(ctx context.Context, tenantID, objectID, fieldID string) (*ports.ColumnInfo, error) {
	args := m.Called(ctx, tenantID, objectID, fieldID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ColumnInfo), args.Error(1)
}

func (m *MockAppService) MigrateObject(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *MockAppService) MigrateField(ctx context.Context, tenantID, objectID, fieldID string) error {
	return m.Called(ctx, tenantID, objectID, fieldID).Error(0)
}

// MockTenantUpdateService is a mock implementation of rest.TenantUpdateService
type MockTenantUpdateService struct {
	mock.Mock
}

func (m *MockTenantUpdateService) UpdateApplication(ctx context.Context, bundle *models.Bundle) (*services.TenantUpdateResult, error) {
	args := m.Called(ctx, bundle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TenantUpdateResult), args.Error(1)
}

// fakeStreamer replays a fixed list of events and closes the stream.
type fakeStreamer struct {
	events []services.PlatformEvent
	types  []services.EventType
}

func (f *fakeStreamer) Stream(_ context.Context, buffer int, types ...services.EventType) <-chan services.PlatformEvent {
	f.types = types
	ch := make(chan services.PlatformEvent, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch
}
