package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/junioryono/graft"
)

// Errors returned by fixture constructors and disposables.
var (
	ErrIntentional = errors.New("intentional error")
	ErrConstructor = errors.New("constructor error")
	ErrDisposal    = errors.New("disposal error")
	ErrStop        = errors.New("stop")
)

// TestService is a dependency-free service with a unique ID per instance.
type TestService struct {
	ID string
}

func NewTestService() *TestService {
	return &TestService{ID: uuid.NewString()}
}

// TestLogger records what it logs.
type TestLogger interface {
	Log(msg string)
	Logs() []string
}

type memoryLogger struct {
	mu   sync.Mutex
	logs []string
}

func NewTestLogger() TestLogger {
	return &memoryLogger{}
}

func (l *memoryLogger) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *memoryLogger) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.logs...)
}

// TestDatabase answers queries with its name and is disposable.
type TestDatabase interface {
	Query(sql string) string
	Close() error
}

type namedDatabase struct {
	name   string
	closed atomic.Bool
}

func NewTestDatabase() TestDatabase {
	return NewTestDatabaseNamed("testdb")
}

func NewTestDatabaseNamed(name string) TestDatabase {
	return &namedDatabase{name: name}
}

func (d *namedDatabase) Query(sql string) string {
	return fmt.Sprintf("%s: %s", d.name, sql)
}

func (d *namedDatabase) Close() error {
	d.closed.Store(true)
	return nil
}

// TestCache is a string map safe for concurrent use.
type TestCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

type mapCache struct {
	m sync.Map
}

func NewTestCache() TestCache {
	return &mapCache{}
}

func (c *mapCache) Get(key string) (string, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *mapCache) Set(key, value string) {
	c.m.Store(key, value)
}

// TestHandler returns a fixed response.
type TestHandler interface {
	Handle() string
}

type namedHandler string

func NewTestHandler(name string) TestHandler {
	return namedHandler(name)
}

func (h namedHandler) Handle() string { return string(h) }

// DecoratedHandler prefixes the response of the handler it decorates.
type DecoratedHandler struct {
	Inner  TestHandler
	Prefix string
}

func (d *DecoratedHandler) Handle() string {
	return d.Prefix + d.Inner.Handle()
}

// TestServiceWithDeps depends on a logger, a database and a cache.
type TestServiceWithDeps struct {
	ID       string
	Logger   TestLogger
	Database TestDatabase
	Cache    TestCache
}

func NewTestServiceWithDeps(logger TestLogger, db TestDatabase, cache TestCache) *TestServiceWithDeps {
	return &TestServiceWithDeps{
		ID:       uuid.NewString(),
		Logger:   logger,
		Database: db,
		Cache:    cache,
	}
}

// TestServiceParams is the parameter object of NewTestServiceFromParams:
// the database comes from the "primary" key and the cache is optional.
type TestServiceParams struct {
	graft.In

	Logger   TestLogger
	Database TestDatabase `key:"primary"`
	Cache    TestCache    `optional:"true"`
}

func NewTestServiceFromParams(p TestServiceParams) *TestServiceWithDeps {
	return NewTestServiceWithDeps(p.Logger, p.Database, p.Cache)
}

// TestDisposable counts as disposed after its first Close. Later calls
// fail.
type TestDisposable struct {
	ID       string
	err      error
	disposed atomic.Bool
}

func NewTestDisposable() *TestDisposable {
	return &TestDisposable{ID: uuid.NewString()}
}

// NewTestDisposableWithError returns a disposable whose Close fails with err.
func NewTestDisposableWithError(err error) *TestDisposable {
	return &TestDisposable{ID: uuid.NewString(), err: err}
}

func (s *TestDisposable) Close() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: already disposed", s.ID)
	}
	return s.err
}

func (s *TestDisposable) IsDisposed() bool {
	return s.disposed.Load()
}

// TestContextDisposable implements graft.DisposableWithContext and keeps
// the context it was closed with.
type TestContextDisposable struct {
	ID string

	mu  sync.Mutex
	ctx context.Context
}

func NewTestContextDisposable() *TestContextDisposable {
	return &TestContextDisposable{ID: uuid.NewString()}
}

func (s *TestContextDisposable) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return fmt.Errorf("%s: already disposed", s.ID)
	}
	s.ctx = ctx
	return nil
}

func (s *TestContextDisposable) WasDisposedWithContext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *TestContextDisposable) IsDisposed() bool {
	return s.WasDisposedWithContext()
}

// DisposalRecorder collects the names of disposed services in disposal order.
type DisposalRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *DisposalRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

// Names returns the recorded names.
func (r *DisposalRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// RecordingDisposable reports its disposal to a DisposalRecorder.
type RecordingDisposable struct {
	Name     string
	recorder *DisposalRecorder
}

// NewRecordingDisposable returns a constructor of RecordingDisposable values
// named name.
func NewRecordingDisposable(rec *DisposalRecorder, name string) func() *RecordingDisposable {
	return func() *RecordingDisposable {
		return &RecordingDisposable{Name: name, recorder: rec}
	}
}

func (d *RecordingDisposable) Close() error {
	d.recorder.record(d.Name)
	return nil
}
