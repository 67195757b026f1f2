package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// exportIgnoredRoles are platform roles that exist in every tenant and are
// never carried by an export.
var exportIgnoredRoles = []string{
	"dd6c2d34-0982-48b7-bc44-2456474edbea",
	"6cc04894-a61b-4fb5-b3e5-b8c3f78bd331",
	"e1be4d22-1d00-4c34-b205-ef84b8334b19",
	"320ef94a-73b5-476e-9db4-c08130c64bb8",
	"ee52974b-5276-427f-ad4c-f29af6b5caaf",
}

// AppExport is an application bundle ready to be imported elsewhere.
type AppExport struct {
	AbVersion string `json:"abVersion"`
	Filename  string `json:"filename"`
	Date      string `json:"date"`
	models.Bundle
}

// MobileConfig is what a mobile client needs to bootstrap an application.
type MobileConfig struct {
	Version string         `json:"version"`
	Site    MobileSiteConf `json:"site"`
}

type MobileSiteConf struct {
	AppBuilder struct {
		NetworkType       string `json:"networkType"`
		NetworkNumRetries int    `json:"networkNumRetries"`
	} `json:"appbuilder"`
	Storage struct {
		Encrypted bool `json:"encrypted"`
	} `json:"storage"`
}

// ObjectInformation describes the live table of an object.
type ObjectInformation struct {
	DefinitionID string             `json:"definitionId"`
	TableName    string             `json:"tableName"`
	Fields       []ports.ColumnInfo `json:"fields"`
}

// AppService serves application exports and single object operations.
type AppService struct {
	tenants *TenantRegistry
	now     func() time.Time
}

func NewAppService(tenants *TenantRegistry) *AppService {
	return &AppService{tenants: tenants, now: time.Now}
}

func (s *AppService) application(ctx context.Context, tenant *Tenant, appID string) (*models.Application, error) {
	def, err := tenant.Store.ByID(ctx, appID)
	if err != nil || def.Type != models.TypeApplication {
		return nil, apperrors.NewNotFoundError("application", appID)
	}
	return models.NewApplication(def)
}

// Export gathers an application, everything it is built from and the roles
// and scopes it grants access to.
func (s *AppService) Export(ctx context.Context, tenantID, appID string) (*AppExport, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, tenant, appID)
}

func (s *AppService) export(ctx context.Context, tenant *Tenant, appID string) (*AppExport, error) {
	app, err := s.application(ctx, tenant, appID)
	if err != nil {
		return nil, err
	}
	snapshot, err := tenant.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	date := s.now().Format("20060102")
	out := &AppExport{
		AbVersion: "0.0.0",
		Filename:  fmt.Sprintf("app_%s_%s", strings.ReplaceAll(strings.TrimSpace(app.Name), " ", "_"), date),
		Date:      date,
	}
	out.Files = map[string]models.FileAttachment{}

	ids := models.NewIDSet()
	app.ExportIDs(ids, snapshot)
	for _, id := range ids.IDs() {
		def, ok := snapshot[id]
		if !ok {
			continue
		}
		def = def.Clone()
		if def.Type == models.TypeObject {
			if err := clearImportedFields(def); err != nil {
				return nil, err
			}
		}
		out.Definitions = append(out.Definitions, def)
	}

	if err := s.exportRoles(ctx, tenant, app, &out.Bundle); err != nil {
		return nil, err
	}
	log.Printf("📦 Exported application %s: %d definitions, %d roles", app.Name, len(out.Definitions), len(out.Roles))
	return out, nil
}

// clearImportedFields empties importedFieldIDs; those fields belong to
// objects outside the export.
func clearImportedFields(def *models.Definition) error {
	var raw map[string]json.RawMessage
	if err := def.Decode(&raw); err != nil {
		return err
	}
	if _, ok := raw["importedFieldIDs"]; !ok {
		return nil
	}
	raw["importedFieldIDs"] = json.RawMessage("[]")
	body, err := json.Marshal(raw)
	if err != nil {
		return apperrors.NewInternalError("encode object "+def.ID, err)
	}
	def.JSON = body
	return nil
}

func (s *AppService) exportRoles(ctx context.Context, tenant *Tenant, app *models.Application, out *models.Bundle) error {
	ignored := make(map[string]bool, len(exportIgnoredRoles))
	for _, id := range exportIgnoredRoles {
		ignored[id] = true
	}
	var roleIDs []string
	for _, id := range app.RoleAccess {
		if !ignored[id] {
			roleIDs = append(roleIDs, id)
		}
	}
	if len(roleIDs) == 0 || tenant.Roles == nil {
		return nil
	}

	roles, err := tenant.Roles.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return err
	}
	scopeIDs := models.NewIDSet()
	for _, r := range roles {
		r.Users = []json.RawMessage{}
		for _, id := range r.Scopes {
			scopeIDs.Add(id)
		}
	}
	out.Roles = roles

	if scopeIDs.Len() == 0 {
		return nil
	}
	scopes, err := tenant.Roles.ScopesByIDs(ctx, scopeIDs.IDs())
	if err != nil {
		return err
	}
	out.Scopes = scopes
	return nil
}

// MobileConfig returns the bootstrap settings of a mobile application.
func (s *AppService) MobileConfig(ctx context.Context, tenantID, appID string) (*MobileConfig, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	app, err := s.application(ctx, tenant, appID)
	if err != nil {
		return nil, err
	}
	cfg := &MobileConfig{Version: app.Version}
	cfg.Site.AppBuilder.NetworkType = app.NetworkType
	cfg.Site.AppBuilder.NetworkNumRetries = 3
	cfg.Site.Storage.Encrypted = false
	return cfg, nil
}

func (s *AppService) object(ctx context.Context, tenant *Tenant, objectID string) (*models.SchemaObject, models.DefinitionMap, error) {
	snapshot, err := tenant.Store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	def, ok := snapshot[objectID]
	if !ok || def.Type != models.TypeObject {
		return nil, nil, apperrors.NewNotFoundError("object", objectID)
	}
	obj, err := models.NewSchemaObject(def, snapshot)
	if err != nil {
		return nil, nil, err
	}
	return obj, snapshot, nil
}

// ObjectInformation describes the table behind an object.
func (s *AppService) ObjectInformation(ctx context.Context, tenantID, objectID string) (*ObjectInformation, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	obj, _, err := s.object(ctx, tenant, objectID)
	if err != nil {
		return nil, err
	}
	cols, err := tenant.Inspector.Describe(ctx, obj.TableName)
	if err != nil {
		return nil, err
	}
	return &ObjectInformation{DefinitionID: obj.ID, TableName: obj.TableName, Fields: cols}, nil
}

// FieldInformation describes the column behind one field.
func (s *AppService) FieldInformation(ctx context.Context, tenantID, objectID, fieldID string) (*ports.ColumnInfo, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	obj, _, err := s.object(ctx, tenant, objectID)
	if err != nil {
		return nil, err
	}
	f, ok := obj.Field(fieldID)
	if !ok {
		return nil, apperrors.NewNotFoundError("field", fieldID)
	}
	cols, err := tenant.Inspector.Describe(ctx, obj.TableName)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if strings.EqualFold(cols[i].Field, f.ColumnName) {
			return &cols[i], nil
		}
	}
	return nil, apperrors.NewNotFoundError("column", f.ColumnName)
}

// MigrateObject creates the table of an object with all its fields and
// indexes, or the view of a query with that id.
func (s *AppService) MigrateObject(ctx context.Context, tenantID, id string) error {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	defer tenant.Invalidator.Invalidate(ctx)

	obj, snapshot, err := s.object(ctx, tenant, id)
	if apperrors.IsNotFound(err) {
		return s.migrateQuery(ctx, tenant, id)
	}
	if err != nil {
		return err
	}
	linkConnectFields(obj, snapshot)

	log.Printf("🔄 Migrating object %s (%s)", obj.Name, obj.TableName)
	return tenant.Schema.WithSession(ctx, func(ctx context.Context, b ports.SchemaBuilder) error {
		obj.StashDeferred()
		if err := b.CreateObject(ctx, obj); err != nil {
			return err
		}
		for _, idx := range obj.ApplyIndexNormal() {
			if err := b.CreateIndex(ctx, obj, idx); err != nil {
				return err
			}
		}
		b.RefreshBinding(ctx, obj)
		if !obj.IsExternal() {
			for _, f := range obj.ApplyConnectFields() {
				if err := b.CreateField(ctx, obj, f); err != nil {
					return err
				}
			}
		}
		for _, idx := range obj.ApplyIndexesWithConnection() {
			if err := b.CreateIndex(ctx, obj, idx); err != nil {
				return err
			}
		}
		b.RefreshBinding(ctx, obj)
		for _, f := range obj.ApplyCombineFields() {
			if err := b.CreateField(ctx, obj, f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *AppService) migrateQuery(ctx context.Context, tenant *Tenant, id string) error {
	def, err := tenant.Store.ByID(ctx, id)
	if err != nil || def.Type != models.TypeQuery {
		return apperrors.NewNotFoundError("object", id)
	}
	q, err := models.NewQuery(def)
	if err != nil {
		return err
	}
	snapshot, err := tenant.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, objID := range q.ObjectIDs {
		if od, ok := snapshot[objID]; ok && od.Type == models.TypeObject {
			if obj, err := models.NewSchemaObject(od, snapshot); err == nil {
				q.Objects = append(q.Objects, obj)
			}
		}
	}
	log.Printf("🔄 Migrating query %s (%s)", q.Name, q.ViewName)
	return tenant.Schema.WithSession(ctx, func(ctx context.Context, b ports.SchemaBuilder) error {
		return b.CreateQuery(ctx, q)
	})
}

// MigrateField creates the column, join table or generated column of one
// field of an object.
func (s *AppService) MigrateField(ctx context.Context, tenantID, objectID, fieldID string) error {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	obj, snapshot, err := s.object(ctx, tenant, objectID)
	if err != nil {
		return err
	}
	f, ok := obj.Field(fieldID)
	if !ok {
		return apperrors.NewNotFoundError("field", fieldID)
	}
	defer tenant.Invalidator.Invalidate(ctx)
	linkConnectFields(obj, snapshot)

	log.Printf("🔄 Migrating field %s on %s", f.Name, obj.TableName)
	return tenant.Schema.WithSession(ctx, func(ctx context.Context, b ports.SchemaBuilder) error {
		return b.CreateField(ctx, obj, f)
	})
}

// linkConnectFields binds the connect fields of obj to the objects they
// link to.
func linkConnectFields(obj *models.SchemaObject, snapshot models.DefinitionMap) {
	for _, f := range obj.ConnectFields() {
		def, ok := snapshot[f.Settings.LinkObject]
		if !ok || def.Type != models.TypeObject {
			continue
		}
		if f.Settings.LinkObject == obj.ID {
			f.LinkedObject = obj
			continue
		}
		if linked, err := models.NewSchemaObject(def, snapshot); err == nil {
			f.LinkedObject = linked
		}
	}
}
