package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ----------------------------------------------------------------------------
// In-memory Store
// ----------------------------------------------------------------------------

// memState is one immutable snapshot of the fake database. Transactions work
// on a clone and swap it in on commit.
type memState struct {
	nextDatasetID int64
	nextReportID  int64
	datasets      map[int64]Dataset
	rows          map[int64][]EquipmentRow
	reports       map[int64]Report
	lastNumber    map[int64]int // per user, survives report deletion
}

func newMemState() *memState {
	return &memState{
		datasets: make(map[int64]Dataset),
		rows:     make(map[int64][]EquipmentRow),
		reports:    make(map[int64]Report),
		lastNumber: make(map[int64]int),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextDatasetID: st.nextDatasetID,
		nextReportID:  st.nextReportID,
		datasets:      make(map[int64]Dataset, len(st.datasets)),
		rows:          make(map[int64][]EquipmentRow, len(st.rows)),
		reports:       make(map[int64]Report, len(st.reports)),
		lastNumber:    make(map[int64]int, len(st.lastNumber)),
	}
	for k, v := range st.lastNumber {
		c.lastNumber[k] = v
	}
	for k, v := range st.datasets {
		c.datasets[k] = v
	}
	for k, v := range st.rows {
		c.rows[k] = append([]EquipmentRow(nil), v...)
	}
	for k, v := range st.reports {
		c.reports[k] = v
	}
	return c
}

// memStore is a Store whose transactions are serialized, like SQLite with a
// single writer connection.
type memStore struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *memState

	// Fault injection.
	failInsertRows error
	failDelete     error
	failListIDs    error
	onInsertReport func(s *memStore) // called once, before the next InsertReport

	commits int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (s *memStore) snapshot() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// commitDirect applies fn to the committed state outside any transaction,
// standing in for a concurrent writer.
func (s *memStore) commitDirect(fn func(st *memState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	fn(st)
	s.state = st
}

func (s *memStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := s.snapshot().clone()
	if err := fn(&memQueries{st: st, store: s}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = st
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *memStore) read() *memQueries {
	return &memQueries{st: s.snapshot(), store: s}
}

func (s *memStore) write(ctx context.Context, fn func(q *memQueries) error) error {
	return s.InTx(ctx, func(q Queries) error { return fn(q.(*memQueries)) })
}

func (s *memStore) InsertDataset(ctx context.Context, d NewDataset) (out Dataset, err error) {
	err = s.write(ctx, func(q *memQueries) error { out, err = q.InsertDataset(ctx, d); return err })
	return out, err
}

func (s *memStore) InsertRows(ctx context.Context, id int64, rows []EquipmentRow) (n int64, err error) {
	err = s.write(ctx, func(q *memQueries) error { n, err = q.InsertRows(ctx, id, rows); return err })
	return n, err
}

func (s *memStore) GetDataset(ctx context.Context, userID, id int64) (Dataset, error) {
	return s.read().GetDataset(ctx, userID, id)
}

func (s *memStore) ListDatasets(ctx context.Context, userID int64, limit int) ([]Dataset, error) {
	return s.read().ListDatasets(ctx, userID, limit)
}

func (s *memStore) ListDatasetIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.read().ListDatasetIDs(ctx, userID)
}

func (s *memStore) DeleteDatasets(ctx context.Context, userID int64, ids []int64) (out []DeletedDataset, err error) {
	err = s.write(ctx, func(q *memQueries) error { out, err = q.DeleteDatasets(ctx, userID, ids); return err })
	return out, err
}

func (s *memStore) ListRows(ctx context.Context, id int64, limit int) ([]EquipmentRow, error) {
	return s.read().ListRows(ctx, id, limit)
}

func (s *memStore) CountRows(ctx context.Context, id int64) (int, error) {
	return s.read().CountRows(ctx, id)
}

func (s *memStore) UsersOverLimit(ctx context.Context, keep int) ([]int64, error) {
	return s.read().UsersOverLimit(ctx, keep)
}

func (s *memStore) LockUser(ctx context.Context, userID int64) error {
	return nil
}

func (s *memStore) MaxReportNumber(ctx context.Context, userID int64) (int, error) {
	return s.read().MaxReportNumber(ctx, userID)
}

func (s *memStore) GetReportByDataset(ctx context.Context, id int64) (Report, error) {
	return s.read().GetReportByDataset(ctx, id)
}

func (s *memStore) InsertReport(ctx context.Context, r NewReport) (out Report, err error) {
	err = s.write(ctx, func(q *memQueries) error { out, err = q.InsertReport(ctx, r); return err })
	return out, err
}

func (s *memStore) UpdateReportPDF(ctx context.Context, id int64, pdf []byte, at time.Time) (out Report, err error) {
	err = s.write(ctx, func(q *memQueries) error { out, err = q.UpdateReportPDF(ctx, id, pdf, at); return err })
	return out, err
}

func (s *memStore) CountReports(ctx context.Context, id int64) (int, error) {
	return s.read().CountReports(ctx, id)
}

func (s *memStore) PurgeAll(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	err := s.write(ctx, func(q *memQueries) error {
		for id, d := range q.st.datasets {
			res.Datasets++
			res.Rows += int64(len(q.st.rows[id]))
			if d.RawRef != "" {
				res.RawRefs = append(res.RawRefs, d.RawRef)
			}
		}
		res.Reports = int64(len(q.st.reports))
		sort.Strings(res.RawRefs)
		q.st.datasets = make(map[int64]Dataset)
		q.st.rows = make(map[int64][]EquipmentRow)
		q.st.reports = make(map[int64]Report)
		q.st.lastNumber = make(map[int64]int)
		return nil
	})
	return res, err
}

// memQueries runs queries against one state snapshot.
type memQueries struct {
	st    *memState
	store *memStore
}

func (q *memQueries) InsertDataset(_ context.Context, d NewDataset) (Dataset, error) {
	q.st.nextDatasetID++
	ds := Dataset{
		ID:        q.st.nextDatasetID,
		UserID:    d.UserID,
		FileName:  d.FileName,
		CreatedAt: d.CreatedAt,
		Summary:   d.Summary,
		RawRef:    d.RawRef,
	}
	q.st.datasets[ds.ID] = ds
	return ds, nil
}

func (q *memQueries) InsertRows(_ context.Context, id int64, rows []EquipmentRow) (int64, error) {
	if err := q.store.failInsertRows; err != nil {
		return 0, err
	}
	if _, ok := q.st.datasets[id]; !ok {
		return 0, fmt.Errorf("violates foreign key constraint: dataset %d", id)
	}
	q.st.rows[id] = append(q.st.rows[id], rows...)
	return int64(len(rows)), nil
}

func (q *memQueries) GetDataset(_ context.Context, userID, id int64) (Dataset, error) {
	ds, ok := q.st.datasets[id]
	if !ok || ds.UserID != userID {
		return Dataset{}, ErrNotFound
	}
	return ds, nil
}

func (q *memQueries) sortedDatasets(userID int64) []Dataset {
	var out []Dataset
	for _, d := range q.st.datasets {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (q *memQueries) ListDatasets(_ context.Context, userID int64, limit int) ([]Dataset, error) {
	out := q.sortedDatasets(userID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) ListDatasetIDs(_ context.Context, userID int64) ([]int64, error) {
	if err := q.store.failListIDs; err != nil {
		return nil, err
	}
	var ids []int64
	for _, d := range q.sortedDatasets(userID) {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (q *memQueries) DeleteDatasets(_ context.Context, userID int64, ids []int64) ([]DeletedDataset, error) {
	if err := q.store.failDelete; err != nil {
		return nil, err
	}
	var out []DeletedDataset
	for _, id := range ids {
		d, ok := q.st.datasets[id]
		if !ok || d.UserID != userID {
			continue
		}
		delete(q.st.datasets, id)
		delete(q.st.rows, id)
		for rid, r := range q.st.reports {
			if r.DatasetID == id {
				delete(q.st.reports, rid)
			}
		}
		out = append(out, DeletedDataset{ID: id, RawRef: d.RawRef})
	}
	return out, nil
}

func (q *memQueries) ListRows(_ context.Context, id int64, limit int) ([]EquipmentRow, error) {
	rows := q.st.rows[id]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]EquipmentRow(nil), rows...), nil
}

func (q *memQueries) CountRows(_ context.Context, id int64) (int, error) {
	return len(q.st.rows[id]), nil
}

func (q *memQueries) UsersOverLimit(_ context.Context, keep int) ([]int64, error) {
	counts := make(map[int64]int)
	for _, d := range q.st.datasets {
		counts[d.UserID]++
	}
	var out []int64
	for u, n := range counts {
		if n > keep {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (q *memQueries) LockUser(context.Context, int64) error { return nil }

func (q *memQueries) MaxReportNumber(_ context.Context, userID int64) (int, error) {
	highest := q.st.lastNumber[userID]
	for _, r := range q.st.reports {
		if r.UserID == userID && r.Number > highest {
			highest = r.Number
		}
	}
	return highest, nil
}

func (q *memQueries) GetReportByDataset(_ context.Context, id int64) (Report, error) {
	for _, r := range q.st.reports {
		if r.DatasetID == id {
			return r, nil
		}
	}
	return Report{}, ErrNotFound
}

// violates reports whether r breaks a unique constraint in st.
func violates(st *memState, r NewReport) error {
	for _, existing := range st.reports {
		if existing.DatasetID == r.DatasetID {
			return ErrReportExists
		}
		if existing.UserID == r.UserID && existing.Number == r.Number {
			return ErrConflict
		}
	}
	return nil
}

func (q *memQueries) InsertReport(_ context.Context, r NewReport) (Report, error) {
	if hook := q.store.onInsertReport; hook != nil {
		q.store.onInsertReport = nil
		hook(q.store)
	}
	// Unique indexes see rows committed by other transactions.
	if err := violates(q.st, r); err != nil {
		return Report{}, err
	}
	if err := violates(q.store.snapshot(), r); err != nil {
		return Report{}, err
	}

	q.st.nextReportID++
	rep := Report{
		ID:        q.st.nextReportID,
		UserID:    r.UserID,
		DatasetID: r.DatasetID,
		Number:    r.Number,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.CreatedAt,
		PDF:       append([]byte(nil), r.PDF...),
	}
	q.st.reports[rep.ID] = rep
	if rep.Number > q.st.lastNumber[rep.UserID] {
		q.st.lastNumber[rep.UserID] = rep.Number
	}
	return rep, nil
}

func (q *memQueries) UpdateReportPDF(_ context.Context, id int64, pdf []byte, at time.Time) (Report, error) {
	r, ok := q.st.reports[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	r.PDF = append([]byte(nil), pdf...)
	r.UpdatedAt = at
	q.st.reports[id] = r
	return r, nil
}

func (q *memQueries) CountReports(_ context.Context, id int64) (int, error) {
	n := 0
	for _, r := range q.st.reports {
		if r.DatasetID == id {
			n++
		}
	}
	return n, nil
}

// addReport commits a report directly, as a concurrent request would.
func addReport(st *memState, r NewReport) {
	st.nextReportID++
	st.reports[st.nextReportID] = Report{
		ID:        st.nextReportID,
		UserID:    r.UserID,
		DatasetID: r.DatasetID,
		Number:    r.Number,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.CreatedAt,
		PDF:       r.PDF,
	}
}

// ----------------------------------------------------------------------------
// Renderer and RawStore
// ----------------------------------------------------------------------------

type fakeRenderer struct {
	mu       sync.Mutex
	calls    int
	err      error
	lastName string
	lastAt   time.Time
	lastSum  Summary
}

func (r *fakeRenderer) Render(_ context.Context, name string, at time.Time, sum Summary) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	r.lastName, r.lastAt, r.lastSum = name, at, sum
	return []byte(fmt.Sprintf("%%PDF-1.4 %s %s total=%d render=%d",
		name, at.Format(time.RFC3339Nano), sum.TotalEquipment, r.calls)), nil
}

func (r *fakeRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memRaw struct {
	mu        sync.Mutex
	files     map[string][]byte
	saveErr   error
	deleteErr error
	n         int
}

func newMemRaw() *memRaw {
	return &memRaw{files: make(map[string][]byte)}
}

func (m *memRaw) Save(_ context.Context, hint string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.n++
	ref := fmt.Sprintf("%s#%d", hint, m.n)
	m.files[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memRaw) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.files[ref]; !ok {
		return errors.New("raw object not found")
	}
	delete(m.files, ref)
	return nil
}

func (m *memRaw) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type testEnv struct {
	svc      *Service
	store    *memStore
	renderer *fakeRenderer
	raw      *memRaw
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newMemStore(),
		renderer: &fakeRenderer{},
		raw:      newMemRaw(),
	}
	svc, err := NewService(env.store, env.renderer, env.raw, Options{
		Keep:                 DefaultRetentionKeep,
		MaxConcurrentUploads: 4,
		MaxUploadWait:        5 * time.Second,
		Now:                  stepClock(),
	})
	if err != nil {
		panic(err)
	}
	env.svc = svc
	return env
}

const pumpValveCSV = "Equipment Name,Type,Flowrate,Pressure,Temperature\n" +
	"Pump1,Pump,10,20,30\n" +
	"Valve1,Valve,5,15,25\n"
