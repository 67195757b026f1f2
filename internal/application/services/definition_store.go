package services

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/digi-serve/ab-service-definition-manager/pkg/utils"
)

// DefinitionStore is the tenant's source of truth for definitions. Rows are
// read once into an in-memory index which every successful write keeps
// current. Callers always receive copies.
//
// When replicas share a freshness store, writes made elsewhere only show up
// as a newer global stamp; FollowPeers makes reads reload the index then.
type DefinitionStore struct {
	repo ports.DefinitionRepository

	mu   sync.RWMutex
	defs map[string]*models.Definition // nil until loaded

	peers    ports.FreshnessStore
	seen     int64 // global stamp read before the last load
	onReload func()
}

func NewDefinitionStore(repo ports.DefinitionRepository) *DefinitionStore {
	return &DefinitionStore{repo: repo}
}

// Refresh reloads the index from the repository.
func (s *DefinitionStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *DefinitionStore) refreshLocked(ctx context.Context) error {
	rows, err := s.repo.FindAll(ctx)
	if err != nil {
		return err
	}
	defs := make(map[string]*models.Definition, len(rows))
	for _, d := range rows {
		defs[d.ID] = d
	}
	s.defs = defs
	log.Printf("✅ Definition store loaded: %d definitions", len(defs))
	return nil
}

// FollowPeers reloads the index on the next read whenever the shared global
// stamp has moved past the one seen at the last load. onReload, if set, runs
// after every such reload.
func (s *DefinitionStore) FollowPeers(freshness ports.FreshnessStore, onReload func()) {
	s.mu.Lock()
	s.peers = freshness
	s.onReload = onReload
	s.mu.Unlock()
}

// Sync loads the index, or reloads it when peers have written since.
func (s *DefinitionStore) Sync(ctx context.Context) error {
	return s.ensureLoaded(ctx)
}

// ensureLoaded loads the index on first use and after peer writes
// (double-checked locking).
func (s *DefinitionStore) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	peers := s.peers
	s.mu.RUnlock()

	var stamp int64
	follow := peers != nil
	if follow {
		var err error
		// Read before loading so the index covers every write up to stamp.
		if stamp, err = peers.Updated(ctx); err != nil {
			log.Printf("⚠️ Failed to read shared definitions stamp, serving local index: %v", err)
			follow = false
		}
	}

	current := func() bool {
		return s.defs != nil && (!follow || stamp <= s.seen)
	}

	s.mu.RLock()
	ok := current()
	s.mu.RUnlock()
	if ok {
		return nil
	}

	s.mu.Lock()
	if current() {
		s.mu.Unlock()
		return nil
	}
	reloading := s.defs != nil
	if err := s.refreshLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if follow {
		s.seen = stamp
	}
	onReload := s.onReload
	s.mu.Unlock()

	if reloading && onReload != nil {
		log.Printf("🔄 Definitions changed on another replica (stamp %d), index reloaded", stamp)
		onReload()
	}
	return nil
}

func (s *DefinitionStore) put(def *models.Definition) {
	s.mu.Lock()
	if s.defs != nil {
		s.defs[def.ID] = def.Clone()
	}
	s.mu.Unlock()
}

func (s *DefinitionStore) forget(id string) {
	s.mu.Lock()
	if s.defs != nil {
		delete(s.defs, id)
	}
	s.mu.Unlock()
}

// Create inserts a new definition, generating its id if missing.
func (s *DefinitionStore) Create(ctx context.Context, def *models.Definition) (*models.Definition, error) {
	if def == nil {
		return nil, apperrors.NewValidationError("definition", "definition is required")
	}
	d := def.Clone()
	if d.ID == "" {
		d.ID = utils.GenerateID()
	}
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.put(d)
	return d.Clone(), nil
}

// Update replaces name, type and json of an existing definition.
func (s *DefinitionStore) Update(ctx context.Context, def *models.Definition) (*models.Definition, error) {
	if def == nil {
		return nil, apperrors.NewValidationError("definition", "definition is required")
	}
	d := def.Clone()
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	s.put(d)
	return d.Clone(), nil
}

// Upsert creates def, falling back to an update when the id already exists.
// It reports whether a new row was created.
func (s *DefinitionStore) Upsert(ctx context.Context, def *models.Definition) (bool, error) {
	_, err := s.Create(ctx, def)
	if err == nil {
		return true, nil
	}
	if !apperrors.IsConflict(err) {
		return false, err
	}
	if _, err := s.Update(ctx, def); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes a definition and returns what was deleted.
func (s *DefinitionStore) Delete(ctx context.Context, id string) (*models.Definition, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.forget(id)
	return deleted, nil
}

// ByID returns a copy of one definition.
func (s *DefinitionStore) ByID(ctx context.Context, id string) (*models.Definition, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	d, ok := s.defs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("definition", id)
	}
	return d.Clone(), nil
}

// ByType returns copies of every definition of type t, ordered by id.
func (s *DefinitionStore) ByType(ctx context.Context, t models.DefinitionType) ([]*models.Definition, error) {
	return s.filter(ctx, func(d *models.Definition) bool { return d.Type == t })
}

// All returns copies of every definition, ordered by id.
func (s *DefinitionStore) All(ctx context.Context) ([]*models.Definition, error) {
	return s.filter(ctx, func(*models.Definition) bool { return true })
}

func (s *DefinitionStore) filter(ctx context.Context, keep func(*models.Definition) bool) ([]*models.Definition, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*models.Definition, 0, len(s.defs))
	for _, d := range s.defs {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	s.mu.RUnlock()
	sortByID(out)
	return out, nil
}

func sortByID(defs []*models.Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}

// Snapshot returns a point-in-time resolver over the whole store. The
// definitions are shared with the store and must not be modified.
func (s *DefinitionStore) Snapshot(ctx context.Context) (models.DefinitionMap, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(models.DefinitionMap, len(s.defs))
	for id, d := range s.defs {
		m[id] = d
	}
	return m, nil
}
