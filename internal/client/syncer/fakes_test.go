package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wichigo/Motium-sub012/internal/client/repositories/repomanager"
	"github.com/wichigo/Motium-sub012/internal/client/services"
	"github.com/wichigo/Motium-sub012/internal/client/storage"
	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/syncapi"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRow struct {
	payload   json.RawMessage
	version   int64
	updatedAt time.Time
	deleted   bool
}

// fakeServer checks versions and replays results by idempotency key.
type fakeServer struct {
	mu      sync.Mutex
	now     time.Time
	rows    map[syncapi.EntityType]map[string]*fakeRow
	results map[string]syncapi.PushResult
	calls   []*syncapi.SyncChangesRequest
	writes  int

	// errs are returned, one per call, before anything is applied
	errs []error
	// dropResponses applies the next N calls and then loses the answer
	dropResponses int
	// codes forces an error code for an entity id
	codes map[string]string
	// pageSize cuts every pull result to that many rows when set
	pageSize int
	// before runs outside the lock at the start of every call
	before func(req *syncapi.SyncChangesRequest)
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		now:     time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		rows:    make(map[syncapi.EntityType]map[string]*fakeRow),
		results: make(map[string]syncapi.PushResult),
		codes:   make(map[string]string),
	}
}

func (s *fakeServer) tick() time.Time {
	s.now = s.now.Add(time.Millisecond)
	return s.now
}

func (s *fakeServer) put(t syncapi.EntityType, id string, p syncapi.Payload, version int64) *fakeRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := syncapi.EncodePayload(p)
	if err != nil {
		panic(err)
	}
	if s.rows[t] == nil {
		s.rows[t] = make(map[string]*fakeRow)
	}
	row := &fakeRow{payload: raw, version: version, updatedAt: s.tick()}
	s.rows[t][id] = row
	return row
}

func (s *fakeServer) row(t syncapi.EntityType, id string) *fakeRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[t][id]
}

func (s *fakeServer) Calls() []*syncapi.SyncChangesRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*syncapi.SyncChangesRequest(nil), s.calls...)
}

func (s *fakeServer) SyncChanges(ctx context.Context, req *syncapi.SyncChangesRequest) (*syncapi.SyncChangesResponse, error) {
	if s.before != nil {
		s.before(req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	resp := &syncapi.SyncChangesResponse{PullResults: map[syncapi.EntityType][]syncapi.RemoteChange{}}
	for _, item := range req.Push {
		resp.PushResults = append(resp.PushResults, s.push(item))
	}
	for t, since := range req.PullSince {
		var changes []syncapi.RemoteChange
		for id, row := range s.rows[t] {
			if row.updatedAt.After(since) {
				changes = append(changes, syncapi.RemoteChange{
					EntityID: id, Payload: row.payload, Version: row.version,
					UpdatedAt: row.updatedAt, Deleted: row.deleted,
				})
			}
		}
		sort.Slice(changes, func(i, j int) bool { return changes[i].UpdatedAt.Before(changes[j].UpdatedAt) })
		if s.pageSize > 0 && len(changes) > s.pageSize {
			changes = changes[:s.pageSize]
			if resp.HasMore == nil {
				resp.HasMore = make(map[syncapi.EntityType]bool)
			}
			resp.HasMore[t] = true
		}
		if len(changes) > 0 {
			resp.PullResults[t] = changes
		}
	}
	resp.SyncTimestamp = s.tick()

	if s.dropResponses > 0 {
		s.dropResponses--
		return nil, errLost
	}
	return resp, nil
}

func (s *fakeServer) push(item syncapi.PushItem) syncapi.PushResult {
	if res, ok := s.results[item.IdempotencyKey]; ok {
		return res
	}
	if code, ok := s.codes[item.EntityID]; ok {
		return syncapi.PushResult{ErrorCode: code, ErrorMessage: "forced"}
	}

	if s.rows[item.EntityType] == nil {
		s.rows[item.EntityType] = make(map[string]*fakeRow)
	}
	row := s.rows[item.EntityType][item.EntityID]
	var current int64
	if row != nil {
		current = row.version
	}

	conflict := func() syncapi.PushResult {
		res := syncapi.PushResult{ErrorCode: syncapi.CodeVersionConflict, ServerVersion: current}
		if row != nil {
			res.ServerUpdatedAt = row.updatedAt
		}
		return res
	}

	var res syncapi.PushResult
	switch {
	case item.Action == syncapi.ActionDelete && row == nil:
		res = syncapi.PushResult{Success: true}
	case item.Action == syncapi.ActionCreate && row != nil:
		return conflict()
	case item.ExpectedVersion != current+1:
		return conflict()
	default:
		if row == nil {
			row = &fakeRow{}
			s.rows[item.EntityType][item.EntityID] = row
		}
		row.version = current + 1
		row.updatedAt = s.tick()
		row.deleted = item.Action == syncapi.ActionDelete
		if !row.deleted {
			row.payload = item.Payload
		}
		s.writes++
		res = syncapi.PushResult{Success: true, ServerVersion: row.version, ServerUpdatedAt: row.updatedAt}
	}
	s.results[item.IdempotencyKey] = res
	return res
}

type errString string

func (e errString) Error() string { return string(e) }

const errLost = errString("connection reset")

type fakeCreds struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeCreds) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "token", f.err
}

type testEnv struct {
	db    *sql.DB
	rm    *repomanager.SQLiteRepositoryManager
	clock *fakeClock
	srv   *fakeServer
	svc   services.MutationService
	eng   *Engine
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:    db,
		rm:    repomanager.NewSQLiteRepositoryManager(),
		clock: &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)},
		srv:   newFakeServer(),
	}
	opts.Clock = env.clock
	tx := dbx.NewTxManager(db, nil)
	env.eng = NewEngine(db, tx, env.rm, env.srv, opts)
	env.svc = services.NewMutationService(db, tx, env.rm, env.clock, nil, nil)
	return env
}

func testTrip(notes string) syncapi.Trip {
	return syncapi.Trip{
		UserID:    "u1",
		StartTime: time.Date(2025, 4, 30, 8, 0, 0, 0, time.UTC),
		Type:      syncapi.TripPro,
		Notes:     notes,
	}
}
