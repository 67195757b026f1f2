package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/persistence"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/digi-serve/ab-service-definition-manager/pkg/throttle"
)

// Import phases, in execution order.
const (
	PhasePersistBase       = "persist base definitions"
	PhaseHydrate           = "hydrate objects"
	PhaseBaseTables        = "create base tables"
	PhaseNormalIndexes     = "apply normal indexes"
	PhaseConnectFields     = "create connect fields"
	PhaseConnectionObjects = "persist connection objects"
	PhaseConnectIndexes    = "apply connect indexes"
	PhaseCombineFields     = "apply combine fields"
	PhaseQueries           = "create queries"
	PhasePersistRemaining  = "persist remaining definitions"
	PhaseFiles             = "import files"
	PhaseRoles             = "import roles and scopes"
	PhaseFinalize          = "finalize"
)

// ImportOptions tunes the fan-out of each phase.
type ImportOptions struct {
	PersistConcurrency   int
	SchemaConcurrency    int
	RemainingConcurrency int
	FileConcurrency      int
	Retry                throttle.DeadlockRetryPolicy
}

// DefaultImportOptions runs every schema-mutating phase one item at a time.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		PersistConcurrency:   8,
		SchemaConcurrency:    1,
		RemainingConcurrency: 1,
		FileConcurrency:      4,
		Retry: throttle.DeadlockRetryPolicy{
			MaxAttempts: throttle.DefaultMaxAttempts,
			Retryable:   persistence.IsDeadlock,
			Delay:       100 * time.Millisecond,
		},
	}
}

// ImportResult reports what an import could not do. The import itself
// succeeded if Import returned no error.
type ImportResult struct {
	Errors    []*models.ImportError `json:"errors"`
	Developer int                   `json:"developerErrors"`
	Builder   int                   `json:"builderErrors"`
}

// ImportPipeline applies definition bundles to a tenant.
type ImportPipeline struct {
	opts      ImportOptions
	notifier  ports.Notifier
	publisher ports.EventPublisher
}

func NewImportPipeline(opts ImportOptions, notifier ports.Notifier, publisher ports.EventPublisher) *ImportPipeline {
	return &ImportPipeline{opts: opts, notifier: notifier, publisher: publisher}
}

// Import runs every phase against the tenant. Failures of single items are
// collected, sent to their audience and returned in the result; only a
// failure of the orchestration itself is returned as an error. The run is
// not cancellable once started, and caches are invalidated however it ends.
func (p *ImportPipeline) Import(ctx context.Context, tenant *Tenant, bundle *models.Bundle) (*ImportResult, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NewValidationError("tenant", "tenant is required")
	}

	ctx = context.WithoutCancel(ctx)
	if running := tenant.beginImport(); running > 1 {
		log.Printf("⚠️ %d imports are running against tenant %s at once", running, tenant.ID)
	}
	defer tenant.endImport()
	defer tenant.Invalidator.Invalidate(ctx)

	started := time.Now()
	log.Printf("🔄 Importing %d definitions into tenant %s", len(bundle.Definitions), tenant.ID)
	p.publish(ctx, events.ImportStarted, events.ImportSummary{TenantID: tenant.ID, Definitions: len(bundle.Definitions)})

	run := newImportRun(tenant, bundle, p.opts)
	err := tenant.Schema.WithSession(ctx, func(ctx context.Context, b ports.SchemaBuilder) error {
		run.builder = b
		return run.execute(ctx)
	})
	if err != nil {
		log.Printf("❌ Import into tenant %s aborted: %v", tenant.ID, err)
		p.notify(ctx, tenant.ID, models.AudienceDeveloper,
			[]*models.ImportError{models.NewImportError(PhaseFinalize, "", "import aborted", err)})
		return nil, err
	}

	result := p.finalize(ctx, tenant, run)
	log.Printf("✅ Import into tenant %s finished in %s", tenant.ID, time.Since(started).Round(time.Millisecond))
	return result, nil
}

func (p *ImportPipeline) finalize(ctx context.Context, tenant *Tenant, run *importRun) *ImportResult {
	logPhase(PhaseFinalize)
	errs := run.errors()
	developer, builder := models.PartitionImportErrors(errs)
	if len(errs) > 0 {
		log.Printf("⚠️ ::: with errors: %d developer / %d builder", len(developer), len(builder))
	}
	p.notify(ctx, tenant.ID, models.AudienceDeveloper, developer)
	p.notify(ctx, tenant.ID, models.AudienceBuilder, builder)

	p.publish(ctx, events.DefinitionStale, events.StalePayload{TenantID: tenant.ID})
	p.publish(ctx, events.ImportFinished, events.ImportSummary{
		TenantID:        tenant.ID,
		Definitions:     len(run.bundle.Definitions),
		DeveloperErrors: len(developer),
		BuilderErrors:   len(builder),
	})
	return &ImportResult{Errors: errs, Developer: len(developer), Builder: len(builder)}
}

func (p *ImportPipeline) notify(ctx context.Context, tenantID string, audience models.Audience, errs []*models.ImportError) {
	if p.notifier == nil || len(errs) == 0 {
		return
	}
	p.notifier.Notify(ctx, tenantID, audience, errs)
}

func (p *ImportPipeline) publish(ctx context.Context, t events.EventType, payload interface{}) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, t, payload); err != nil {
		log.Printf("⚠️ Failed to publish %s: %v", t, err)
	}
}

func logPhase(phase string) {
	log.Printf("::: IMPORT : %s", phase)
}

// fieldTask and indexTask are queue items of the schema phases.
type fieldTask struct {
	obj   *models.SchemaObject
	field *models.Field
}

type indexTask struct {
	obj *models.SchemaObject
	idx *models.Index
}

// importRun is the state of one import.
type importRun struct {
	tenant  *Tenant
	bundle  *models.Bundle
	opts    ImportOptions
	builder ports.SchemaBuilder

	resolver models.Resolver

	savedMu sync.Mutex
	saved   map[string]bool

	objects []*models.SchemaObject
	byID    map[string]*models.SchemaObject
	// targets are existing objects that gained fields through the bundle's
	// site object connections.
	targets []*models.SchemaObject

	errMu sync.Mutex
	errs  []*models.ImportError
}

func newImportRun(tenant *Tenant, bundle *models.Bundle, opts ImportOptions) *importRun {
	return &importRun{
		tenant: tenant,
		bundle: bundle,
		opts:   opts,
		saved:  make(map[string]bool),
		byID:   make(map[string]*models.SchemaObject),
	}
}

func (r *importRun) record(phase, itemID, message string, err error) {
	ie := models.NewImportError(phase, itemID, message, err)
	log.Printf("❌ %v", ie)
	r.errMu.Lock()
	r.errs = append(r.errs, ie)
	r.errMu.Unlock()
}

func (r *importRun) errors() []*models.ImportError {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return append([]*models.ImportError(nil), r.errs...)
}

func (r *importRun) execute(ctx context.Context) error {
	r.persistBase(ctx)
	if err := r.hydrate(ctx); err != nil {
		return err
	}
	r.createBaseTables(ctx)
	r.applyNormalIndexes(ctx)
	r.createConnectFields(ctx)
	r.persistConnectionObjects(ctx)
	r.applyConnectIndexes(ctx)
	r.applyCombineFields(ctx)
	r.createQueries(ctx)
	r.persistRemaining(ctx)
	r.importFiles(ctx)
	r.importRoles(ctx)
	return nil
}

// upsert writes a definition, retrying on lock contention.
func (r *importRun) upsert(ctx context.Context, def *models.Definition) error {
	return r.opts.Retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
		_, err := r.tenant.Store.Upsert(ctx, def)
		return err
	})
}

// persistBase upserts every application, object, field, index and query.
// An id counts as saved once its write was attempted.
func (r *importRun) persistBase(ctx context.Context) {
	logPhase(PhasePersistBase)
	var defs []*models.Definition
	for _, d := range r.bundle.Definitions {
		if models.SchemaTypes[d.Type] {
			defs = append(defs, d)
			r.saved[d.ID] = true
		}
	}
	throttle.Run(ctx, defs, r.opts.PersistConcurrency, r.upsert, func(err error, d *models.Definition) {
		r.record(PhasePersistBase, d.ID, fmt.Sprintf("saving %s %q", d.Type, d.Name), err)
	})
}

// hydrate builds the bundle's objects and binds connect fields to the
// objects they link to. Definitions already in the tenant resolve what the
// bundle does not carry.
func (r *importRun) hydrate(ctx context.Context) error {
	logPhase(PhaseHydrate)
	snapshot, err := r.tenant.Store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tenant definitions: %w", err)
	}
	r.resolver = models.ChainResolver{r.bundle.Index(), snapshot}

	for _, def := range r.bundle.DefinitionsOf(models.TypeObject) {
		obj, err := models.NewSchemaObject(def, r.resolver)
		if err != nil {
			r.record(PhaseHydrate, def.ID, fmt.Sprintf("reading object %q", def.Name), err)
			continue
		}
		if _, dup := r.byID[obj.ID]; dup {
			continue
		}
		r.byID[obj.ID] = obj
		r.objects = append(r.objects, obj)
	}
	for _, obj := range r.objects {
		r.linkConnectFields(obj)
	}
	return nil
}

func (r *importRun) linkConnectFields(obj *models.SchemaObject) {
	for _, f := range obj.ConnectFields() {
		f.LinkedObject = r.object(f.Settings.LinkObject)
	}
}

// object returns an object of this run, or hydrates one the tenant
// already has. Nil when neither knows the id.
func (r *importRun) object(id string) *models.SchemaObject {
	if obj, ok := r.byID[id]; ok {
		return obj
	}
	def, ok := r.resolver.Definition(id)
	if !ok || def.Type != models.TypeObject {
		return nil
	}
	obj, err := models.NewSchemaObject(def, r.resolver)
	if err != nil {
		log.Printf("⚠️ Cannot read linked object %s: %v", id, err)
		return nil
	}
	r.byID[obj.ID] = obj
	return obj
}

func (r *importRun) createBaseTables(ctx context.Context) {
	logPhase(PhaseBaseTables)
	for _, obj := range r.objects {
		obj.StashDeferred()
	}
	throttle.Run(ctx, r.objects, r.opts.SchemaConcurrency,
		func(ctx context.Context, obj *models.SchemaObject) error {
			return r.builder.CreateObject(ctx, obj)
		},
		func(err error, obj *models.SchemaObject) {
			r.record(PhaseBaseTables, obj.ID, fmt.Sprintf("creating table of %q without connections", obj.Name), err)
		})
}

func (r *importRun) applyIndexes(ctx context.Context, phase string, tasks []indexTask) {
	throttle.Run(ctx, tasks, r.opts.SchemaConcurrency,
		func(ctx context.Context, t indexTask) error {
			return r.builder.CreateIndex(ctx, t.obj, t.idx)
		},
		func(err error, t indexTask) {
			r.record(phase, t.idx.ID, fmt.Sprintf("creating index %q on %q", t.idx.Name, t.obj.Name), err)
		})
}

func (r *importRun) applyFields(ctx context.Context, phase string, tasks []fieldTask) {
	throttle.Run(ctx, tasks, r.opts.SchemaConcurrency, r.createField,
		func(err error, t fieldTask) {
			r.record(phase, t.field.ID, fmt.Sprintf("creating field %q on %q", t.field.Name, t.obj.Name), err)
		})
}

func (r *importRun) createField(ctx context.Context, t fieldTask) error {
	return r.builder.CreateField(ctx, t.obj, t.field)
}

func (r *importRun) refresh(ctx context.Context, objs []*models.SchemaObject) {
	for _, obj := range objs {
		r.builder.RefreshBinding(ctx, obj)
	}
}

func (r *importRun) applyNormalIndexes(ctx context.Context) {
	logPhase(PhaseNormalIndexes)
	var tasks []indexTask
	for _, obj := range r.objects {
		for _, idx := range obj.ApplyIndexNormal() {
			tasks = append(tasks, indexTask{obj: obj, idx: idx})
		}
	}
	r.applyIndexes(ctx, PhaseNormalIndexes, tasks)
	r.refresh(ctx, r.objects)
}

// createConnectFields creates the connect fields of every internal object,
// plus the fields the bundle adds to existing objects. Items hitting lock
// contention go back to the end of the queue.
func (r *importRun) createConnectFields(ctx context.Context) {
	logPhase(PhaseConnectFields)
	var tasks []fieldTask
	for _, obj := range r.objects {
		obj.ApplyConnectFields()
	}
	for _, obj := range r.objects {
		if obj.IsExternal() {
			continue
		}
		for _, f := range obj.ConnectFields() {
			tasks = append(tasks, fieldTask{obj: obj, field: f})
		}
	}
	tasks = append(tasks, r.siteConnectionTasks()...)

	throttle.RunWithRetry(ctx, tasks, r.opts.SchemaConcurrency, r.opts.Retry, r.createField,
		func(err error, t fieldTask) {
			r.record(PhaseConnectFields, t.field.ID, fmt.Sprintf("creating connect field %q on %q", t.field.Name, t.obj.Name), err)
		})
}

// siteConnectionTasks attaches connect fields carried by the bundle to the
// existing objects they belong to.
func (r *importRun) siteConnectionTasks() []fieldTask {
	var tasks []fieldTask
	for _, targetID := range sortedKeys(r.bundle.SiteObjectConnections) {
		target := r.object(targetID)
		if target == nil {
			r.record(PhaseConnectFields, targetID, "site object for new connections",
				apperrors.NewSchemaError(targetID, "object does not exist in this tenant", nil))
			continue
		}
		touched := false
		for _, fieldID := range r.bundle.SiteObjectConnections[targetID] {
			def, ok := r.resolver.Definition(fieldID)
			if !ok {
				r.record(PhaseConnectFields, fieldID, "connection for "+target.Name,
					apperrors.NewSchemaError(fieldID, "field is not part of the bundle", nil))
				continue
			}
			f, err := models.NewField(def)
			if err != nil {
				r.record(PhaseConnectFields, fieldID, "connection for "+target.Name, err)
				continue
			}
			f.LinkedObject = r.object(f.Settings.LinkObject)
			target.ImportField(f)
			touched = true
			tasks = append(tasks, fieldTask{obj: target, field: f})
		}
		if touched {
			r.targets = append(r.targets, target)
		}
	}
	return tasks
}

// persistConnectionObjects saves the existing objects that gained fields.
func (r *importRun) persistConnectionObjects(ctx context.Context) {
	logPhase(PhaseConnectionObjects)
	throttle.Run(ctx, r.targets, r.opts.SchemaConcurrency,
		func(ctx context.Context, obj *models.SchemaObject) error {
			def, err := obj.ToDefinition()
			if err != nil {
				return err
			}
			return r.upsert(ctx, def)
		},
		func(err error, obj *models.SchemaObject) {
			r.record(PhaseConnectionObjects, obj.ID, fmt.Sprintf("saving connections of %q", obj.Name), err)
		})
}

func (r *importRun) applyConnectIndexes(ctx context.Context) {
	logPhase(PhaseConnectIndexes)
	var tasks []indexTask
	for _, obj := range r.objects {
		for _, idx := range obj.ApplyIndexesWithConnection() {
			tasks = append(tasks, indexTask{obj: obj, idx: idx})
		}
	}
	r.applyIndexes(ctx, PhaseConnectIndexes, tasks)
	r.refresh(ctx, r.objects)
	r.refresh(ctx, r.targets)
}

func (r *importRun) applyCombineFields(ctx context.Context) {
	logPhase(PhaseCombineFields)
	var tasks []fieldTask
	for _, obj := range r.objects {
		for _, f := range obj.ApplyCombineFields() {
			tasks = append(tasks, fieldTask{obj: obj, field: f})
		}
	}
	r.applyFields(ctx, PhaseCombineFields, tasks)
}

func (r *importRun) createQueries(ctx context.Context) {
	logPhase(PhaseQueries)
	var queries []*models.Query
	for _, def := range r.bundle.DefinitionsOf(models.TypeQuery) {
		q, err := models.NewQuery(def)
		if err != nil {
			r.record(PhaseQueries, def.ID, fmt.Sprintf("reading query %q", def.Name), err)
			continue
		}
		for _, id := range q.ObjectIDs {
			if obj := r.object(id); obj != nil {
				q.Objects = append(q.Objects, obj)
			}
		}
		queries = append(queries, q)
	}
	throttle.Run(ctx, queries, r.opts.SchemaConcurrency,
		func(ctx context.Context, q *models.Query) error {
			return r.builder.CreateQuery(ctx, q)
		},
		func(err error, q *models.Query) {
			r.record(PhaseQueries, q.ID, fmt.Sprintf("creating query %q", q.Name), err)
		})
}

// persistRemaining saves every definition the first phase did not.
func (r *importRun) persistRemaining(ctx context.Context) {
	var rest []*models.Definition
	for _, d := range r.bundle.Definitions {
		if !r.saved[d.ID] {
			r.saved[d.ID] = true
			rest = append(rest, d)
		}
	}
	log.Printf("::: IMPORT : %s #%d", PhasePersistRemaining, len(rest))
	throttle.Run(ctx, rest, r.opts.RemainingConcurrency, r.upsert, func(err error, d *models.Definition) {
		r.record(PhasePersistRemaining, d.ID, fmt.Sprintf("saving %s %q", d.Type, d.Name), err)
	})
}

func (r *importRun) importFiles(ctx context.Context) {
	keys := sortedKeys(r.bundle.Files)
	if len(keys) == 0 {
		return
	}
	logPhase(PhaseFiles)
	if r.tenant.Files == nil {
		r.record(PhaseFiles, "", "saving files", apperrors.NewInternalError("no file importer configured", nil))
		return
	}
	throttle.Run(ctx, keys, r.opts.FileConcurrency,
		func(ctx context.Context, key string) error {
			return r.tenant.Files.Import(ctx, key, r.bundle.Files[key])
		},
		func(err error, key string) {
			r.record(PhaseFiles, key, "saving file", err)
		})
}

// importRoles saves the scopes roles refer to before the roles themselves.
// Roles are written without users so assignments in the tenant survive.
func (r *importRun) importRoles(ctx context.Context) {
	if len(r.bundle.Roles) == 0 && len(r.bundle.Scopes) == 0 {
		return
	}
	logPhase(PhaseRoles)
	if r.tenant.Roles == nil {
		r.record(PhaseRoles, "", "saving roles", apperrors.NewInternalError("no role store configured", nil))
		return
	}

	referenced := make(map[string]bool)
	for _, role := range r.bundle.Roles {
		for _, id := range role.Scopes {
			referenced[id] = true
		}
	}
	var scopes, rest []*models.Scope
	for _, s := range r.bundle.Scopes {
		if referenced[s.UUID] {
			scopes = append(scopes, s)
		} else {
			rest = append(rest, s)
		}
	}
	scopes = append(scopes, rest...)

	throttle.Run(ctx, scopes, r.opts.RemainingConcurrency,
		func(ctx context.Context, s *models.Scope) error {
			return r.opts.Retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
				return r.tenant.Roles.UpsertScope(ctx, s)
			})
		},
		func(err error, s *models.Scope) {
			r.record(PhaseRoles, s.UUID, fmt.Sprintf("saving scope %q", s.Name), err)
		})

	roles := make([]*models.Role, 0, len(r.bundle.Roles))
	for _, role := range r.bundle.Roles {
		c := *role
		c.Users = nil
		roles = append(roles, &c)
	}
	throttle.Run(ctx, roles, r.opts.RemainingConcurrency,
		func(ctx context.Context, role *models.Role) error {
			return r.opts.Retry.RetryOnDeadlock(ctx, func(ctx context.Context) error {
				return r.tenant.Roles.UpsertRole(ctx, role)
			})
		},
		func(err error, role *models.Role) {
			r.record(PhaseRoles, role.UUID, fmt.Sprintf("saving role %q", role.Name), err)
		})
}
