package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/digi-serve/ab-service-definition-manager/pkg/throttle"
)

var errDeadlock = &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}

// fakeRepo is an in-memory DefinitionRepository. Errors queued in fail are
// returned once each, keyed by "<op>:<id>".
type fakeRepo struct {
	mu    sync.Mutex
	rows  map[string]*models.Definition
	fail  map[string][]error
	loads int
}

func newFakeRepo(defs ...*models.Definition) *fakeRepo {
	r := &fakeRepo{rows: make(map[string]*models.Definition), fail: make(map[string][]error)}
	for _, d := range defs {
		r.rows[d.ID] = d.Clone()
	}
	return r
}

func (r *fakeRepo) failNext(op, id string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op+":"+id] = append(r.fail[op+":"+id], errs...)
}

func (r *fakeRepo) popErr(op, id string) error {
	key := op + ":" + id
	q := r.fail[key]
	if len(q) == 0 {
		return nil
	}
	r.fail[key] = q[1:]
	return q[0]
}

func (r *fakeRepo) Create(_ context.Context, def *models.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr("create", def.ID); err != nil {
		return err
	}
	if _, ok := r.rows[def.ID]; ok {
		return apperrors.NewConflictError("definition", "id", def.ID)
	}
	r.rows[def.ID] = def.Clone()
	return nil
}

func (r *fakeRepo) Update(_ context.Context, def *models.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr("update", def.ID); err != nil {
		return err
	}
	if _, ok := r.rows[def.ID]; !ok {
		return apperrors.NewNotFoundError("definition", def.ID)
	}
	r.rows[def.ID] = def.Clone()
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) (*models.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr("delete", id); err != nil {
		return nil, err
	}
	d, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("definition", id)
	}
	delete(r.rows, id)
	return d, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*models.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("definition", id)
	}
	return d.Clone(), nil
}

func (r *fakeRepo) FindAll(_ context.Context) ([]*models.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	out := make([]*models.Definition, 0, len(r.rows))
	for _, d := range r.rows {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (r *fakeRepo) row(id string) (*models.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	return d, ok
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeRoles records the order roles and scopes were written in.
type fakeRoles struct {
	mu     sync.Mutex
	order  []string
	roles  map[string]*models.Role
	scopes map[string]*models.Scope
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: map[string]*models.Role{}, scopes: map[string]*models.Scope{}}
}

func (f *fakeRoles) UpsertScope(_ context.Context, s *models.Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "scope:"+s.UUID)
	c := *s
	f.scopes[s.UUID] = &c
	return nil
}

func (f *fakeRoles) UpsertRole(_ context.Context, r *models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "role:"+r.UUID)
	c := *r
	if existing, ok := f.roles[r.UUID]; ok {
		c.Users = existing.Users
	}
	f.roles[r.UUID] = &c
	return nil
}

func (f *fakeRoles) RolesByIDs(_ context.Context, ids []string) ([]*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Role
	for _, id := range ids {
		if r, ok := f.roles[id]; ok {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeRoles) ScopesByIDs(_ context.Context, ids []string) ([]*models.Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Scope
	for _, id := range ids {
		if s, ok := f.scopes[id]; ok {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

// fakeBuilder records every schema change as "<kind>:<id>".
type fakeBuilder struct {
	mu        sync.Mutex
	ops       []string
	attempts  map[string]int
	fail      map[string][]error
	refreshed map[string]int
	columns   map[string][]string // by object id
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{
		attempts:  map[string]int{},
		fail:      map[string][]error{},
		refreshed: map[string]int{},
		columns:   map[string][]string{},
	}
}

// failWith queues errors returned by the next attempts of an op key.
func (b *fakeBuilder) failWith(key string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[key] = append(b.fail[key], errs...)
}

func (b *fakeBuilder) apply(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[key]++
	if q := b.fail[key]; len(q) > 0 {
		b.fail[key] = q[1:]
		return q[0]
	}
	b.ops = append(b.ops, key)
	return nil
}

func (b *fakeBuilder) CreateObject(_ context.Context, obj *models.SchemaObject) error {
	if obj.IsExternal() {
		return nil
	}
	if err := b.apply("table:" + obj.ID); err != nil {
		return err
	}
	for _, f := range obj.Fields() {
		if !f.IsConnect() && !f.IsCombine() && f.HasColumn() {
			b.addColumn(obj.ID, f.ColumnName)
		}
	}
	return nil
}

func (b *fakeBuilder) CreateField(_ context.Context, obj *models.SchemaObject, f *models.Field) error {
	if err := b.apply("field:" + f.ID); err != nil {
		return err
	}
	if f.HasColumn() {
		b.addColumn(obj.ID, f.ColumnName)
	}
	return nil
}

func (b *fakeBuilder) addColumn(objectID, column string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.columns[objectID] {
		if c == column {
			return
		}
	}
	b.columns[objectID] = append(b.columns[objectID], column)
}

func (b *fakeBuilder) tableColumns(objectID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.columns[objectID]...)
}

func (b *fakeBuilder) CreateIndex(_ context.Context, _ *models.SchemaObject, idx *models.Index) error {
	return b.apply("index:" + idx.ID)
}

func (b *fakeBuilder) CreateQuery(_ context.Context, q *models.Query) error {
	return b.apply("query:" + q.ID)
}

func (b *fakeBuilder) RefreshBinding(_ context.Context, obj *models.SchemaObject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshed[obj.ID]++
}

func (b *fakeBuilder) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

func (b *fakeBuilder) tries(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[key]
}

type fakeSessions struct {
	builder  *fakeBuilder
	err      error
	sessions int
}

func (s *fakeSessions) WithSession(ctx context.Context, fn func(ctx context.Context, b ports.SchemaBuilder) error) error {
	s.sessions++
	if s.err != nil {
		return s.err
	}
	return fn(ctx, s.builder)
}

type fakeInspector struct {
	tables map[string][]ports.ColumnInfo
}

func (i *fakeInspector) Describe(_ context.Context, table string) ([]ports.ColumnInfo, error) {
	cols, ok := i.tables[table]
	if !ok {
		return nil, apperrors.NewNotFoundError("table", table)
	}
	return cols, nil
}

type fakeFiles struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeFiles) Import(_ context.Context, key string, _ models.FileAttachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

// fakeFreshness hands out increasing stamps and counts Stamp calls.
type fakeFreshness struct {
	mu      sync.Mutex
	clock   int64
	updated int64
	mobile  map[string]int64
	stamps  int
}

func newFakeFreshness() *fakeFreshness {
	return &fakeFreshness{clock: 1000, mobile: map[string]int64{}}
}

func (f *fakeFreshness) tick() int64 {
	f.clock++
	return f.clock
}

func (f *fakeFreshness) Updated(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == 0 {
		f.updated = f.tick()
	}
	return f.updated, nil
}

func (f *fakeFreshness) MobileUpdated(_ context.Context, appID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mobile[appID]; !ok {
		f.mobile[appID] = f.tick()
	}
	return f.mobile[appID], nil
}

func (f *fakeFreshness) Stamp(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamps++
	f.updated = f.tick()
	f.mobile = map[string]int64{}
	return nil
}

func (f *fakeFreshness) stampCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stamps
}

type fakeNotifier struct {
	mu    sync.Mutex
	byAud map[models.Audience][]*models.ImportError
}

func (n *fakeNotifier) Notify(_ context.Context, _ string, audience models.Audience, errs []*models.ImportError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.byAud == nil {
		n.byAud = map[models.Audience][]*models.ImportError{}
	}
	n.byAud[audience] = append(n.byAud[audience], errs...)
}

type fakeDirectory []string

func (d fakeDirectory) TenantIDs(context.Context) ([]string, error) { return d, nil }

// testEnv is one tenant backed entirely by fakes.
type testEnv struct {
	tenant    *Tenant
	repo      *fakeRepo
	roles     *fakeRoles
	builder   *fakeBuilder
	sessions  *fakeSessions
	inspector *fakeInspector
	files     *fakeFiles
	fresh     *fakeFreshness
}

func newTestEnv(t *testing.T, id string, defs ...*models.Definition) *testEnv {
	t.Helper()
	b := newFakeBuilder()
	env := &testEnv{
		repo:      newFakeRepo(defs...),
		roles:     newFakeRoles(),
		builder:   b,
		sessions:  &fakeSessions{builder: b},
		inspector: &fakeInspector{tables: map[string][]ports.ColumnInfo{}},
		files:     &fakeFiles{},
		fresh:     newFakeFreshness(),
	}
	env.tenant = NewTenant(id, env.resources(), []string{systemRole})
	return env
}

func (e *testEnv) resources() *TenantResources {
	return &TenantResources{
		Definitions: e.repo,
		Roles:       e.roles,
		Schema:      e.sessions,
		Inspector:   e.inspector,
		Files:       e.files,
		Freshness:   e.fresh,
	}
}

// registryFor serves the given environments by tenant id.
func registryFor(envs map[string]*testEnv) *TenantRegistry {
	return NewTenantRegistry(TenantFactoryFunc(func(_ context.Context, id string) (*TenantResources, error) {
		env, ok := envs[id]
		if !ok {
			return nil, apperrors.NewNotFoundError("tenant", id)
		}
		return env.resources(), nil
	}), []string{systemRole})
}

func testOptions() ImportOptions {
	opts := DefaultImportOptions()
	opts.Retry.Delay = 0
	return opts
}

func testRetry() throttle.DeadlockRetryPolicy { return testOptions().Retry }

const systemRole = "sys-admin"

func def(id string, t models.DefinitionType, name string, body string) *models.Definition {
	return &models.Definition{ID: id, Type: t, Name: name, JSON: json.RawMessage(body)}
}

// contactBundle describes one application with two objects: Contact links
// to Company, indexes that link, combines two fields and is read by a query.
func contactBundle() *models.Bundle {
	return &models.Bundle{Definitions: []*models.Definition{
		def("A1", models.TypeApplication, "Contacts App", `{"roleAccess":["r-1"],"objectIDs":["O1","O2"],"queryIDs":["Q1"]}`),
		def("O1", models.TypeObject, "Contact", `{"tableName":"AB_Contact","fieldIDs":["f-name","f-company","f-label"],"indexIDs":["i-name","i-co"]}`),
		def("O2", models.TypeObject, "Company", `{"tableName":"AB_Company","fieldIDs":["f-title"]}`),
		def("f-name", models.TypeField, "name", `{"key":"string","columnName":"name"}`),
		def("f-title", models.TypeField, "title", `{"key":"string","columnName":"title"}`),
		def("f-company", models.TypeField, "company", `{"key":"connectObject","columnName":"company","settings":{"linkObject":"O2","linkType":"one","linkViaType":"many"}}`),
		def("f-label", models.TypeField, "label", `{"key":"combined","columnName":"label","settings":{"combinedFields":["f-name","f-company"],"delimiter":"-"}}`),
		def("i-name", models.TypeIndex, "name_idx", `{"indexName":"IDX_name","fieldIDs":["f-name"]}`),
		def("i-co", models.TypeIndex, "company_idx", `{"indexName":"IDX_company","fieldIDs":["f-company"]}`),
		def("Q1", models.TypeQuery, "Contacts", `{"viewName":"AB_QUERY_Contacts","objectIDs":["O1"],"sql":"SELECT name FROM AB_Contact"}`),
		def("D1", models.DefinitionType("datacollection"), "All contacts", `{"settings":{"datasourceID":"O1"}}`),
	}}
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
