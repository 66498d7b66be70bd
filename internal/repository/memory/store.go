package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// CommitHook runs before a batch is applied. A non-nil error aborts the commit.
type CommitHook func(collection string, records []models.Record) error

// Store is an in-memory credential and document store. It records every connection
// update and batch commit so callers can inspect the write history.
type Store struct {
	mu          sync.RWMutex
	connections map[string]*models.Connection
	documents   map[string]map[string]models.Record
	updates     map[string][]models.ConnectionUpdate
	commits     map[string][]int
	commitHook  CommitHook
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		connections: make(map[string]*models.Connection),
		documents:   make(map[string]map[string]models.Record),
		updates:     make(map[string][]models.ConnectionUpdate),
		commits:     make(map[string][]int),
		now:         time.Now,
	}
}

// SetCommitHook installs a hook called before every batch commit.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

func (s *Store) GetConnection(_ context.Context, organizationID string, source models.SourceName) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[models.ConnectionKey(organizationID, source)]
	if !ok {
		return nil, repository.ErrConnectionNotFound
	}
	return cloneConnection(conn), nil
}

func (s *Store) UpdateConnection(_ context.Context, organizationID string, source models.SourceName, update models.ConnectionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.ConnectionKey(organizationID, source)
	conn, ok := s.connections[key]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	update.Apply(conn)
	conn.UpdatedAt = s.now()
	s.updates[key] = append(s.updates[key], update)
	return nil
}

func (s *Store) SaveConnection(_ context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneConnection(conn)
	stored.UpdatedAt = s.now()
	s.connections[conn.Key()] = stored
	return nil
}

func (s *Store) ListConnections(_ context.Context) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		result = append(result, cloneConnection(conn))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key() < result[j].Key()
	})
	return result, nil
}

func (s *Store) UpsertBatch(_ context.Context, collection string, records []models.Record) error {
	if len(records) > config.MaxBatchSize {
		return repository.ErrBatchTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitHook != nil {
		if err := s.commitHook(collection, records); err != nil {
			return err
		}
	}

	docs, ok := s.documents[collection]
	if !ok {
		docs = make(map[string]models.Record)
		s.documents[collection] = docs
	}
	for _, r := range records {
		r.Fields = maps.Clone(r.Fields)
		docs[r.Key] = r
	}
	s.commits[collection] = append(s.commits[collection], len(records))
	return nil
}

func (s *Store) GetDocument(_ context.Context, collection, key string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[collection][key]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	doc.Fields = maps.Clone(doc.Fields)
	return &doc, nil
}

func (s *Store) CountDocuments(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents[collection]), nil
}

// Commits returns the size of every committed batch for collection, in commit order.
func (s *Store) Commits(collection string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.commits[collection])
}

// Updates returns every partial update applied to the connection, in order.
func (s *Store) Updates(organizationID string, source models.SourceName) []models.ConnectionUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.updates[models.ConnectionKey(organizationID, source)])
}

func (s *Store) Close() error {
	return nil
}

func cloneConnection(conn *models.Connection) *models.Connection {
	c := *conn
	c.SourceConfig = maps.Clone(conn.SourceConfig)
	c.LastSyncResults = conn.LastSyncResults.Clone()
	if conn.Credentials.AccessTokenExpiry != nil {
		expiry := *conn.Credentials.AccessTokenExpiry
		c.Credentials.AccessTokenExpiry = &expiry
	}
	if conn.LastSyncAt != nil {
		t := *conn.LastSyncAt
		c.LastSyncAt = &t
	}
	if conn.ErrorMessage != nil {
		msg := *conn.ErrorMessage
		c.ErrorMessage = &msg
	}
	return &c
}
