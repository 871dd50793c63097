package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory ports.Store. WithinTx runs the callback against
// the same state without rollback; tests assert on final state only.
type fakeStore struct {
	nextID int64

	parties        map[int64]*domain.Party
	titles         map[int64]*domain.Title
	batches        map[int64]*domain.Batch
	withdrawals    map[int64]*domain.Withdrawal
	authorizations map[int64]*domain.CancellationAuthorization
	transactions   map[int64]*domain.CancellationTransaction
	ingestErrors   map[int64]*domain.IngestError

	insertTitleErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		parties:        make(map[int64]*domain.Party),
		titles:         make(map[int64]*domain.Title),
		batches:        make(map[int64]*domain.Batch),
		withdrawals:    make(map[int64]*domain.Withdrawal),
		authorizations: make(map[int64]*domain.CancellationAuthorization),
		transactions:   make(map[int64]*domain.CancellationTransaction),
		ingestErrors:   make(map[int64]*domain.IngestError),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func notFound(what string) error {
	return domain.WrapError(domain.ErrNotFound, what, fmt.Errorf("no row"))
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(ports.Store) error) error {
	return fn(f)
}

func (f *fakeStore) FindPartiesByName(_ context.Context, role domain.PartyRole, name string) ([]domain.Party, error) {
	var out []domain.Party
	for _, p := range f.parties {
		if p.Role == role && p.Name == name {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertParty(_ context.Context, p *domain.Party) (int64, error) {
	p.ID = f.id()
	cp := *p
	f.parties[p.ID] = &cp
	return p.ID, nil
}

func (f *fakeStore) GetTitle(_ context.Context, id int64) (*domain.Title, error) {
	t, ok := f.titles[id]
	if !ok {
		return nil, notFound("get title")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) FindTitleByProtocol(_ context.Context, protocol string) (*domain.Title, error) {
	for _, t := range f.titles {
		if t.Protocol == protocol {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFound("find title by protocol")
}

func (f *fakeStore) FindTitleByNumberAndProtocol(_ context.Context, number, protocol string) (*domain.Title, error) {
	for _, t := range f.titles {
		if t.Number == number && t.Protocol == protocol {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFound("find title by number and protocol")
}

func (f *fakeStore) InsertTitle(_ context.Context, t *domain.Title) (int64, error) {
	if f.insertTitleErr != nil {
		err := f.insertTitleErr
		f.insertTitleErr = nil
		return 0, err
	}
	for _, existing := range f.titles {
		if existing.Protocol == t.Protocol {
			return 0, domain.WrapError(domain.ErrUniqueness, "insert title", fmt.Errorf("protocol %s", t.Protocol))
		}
	}
	t.ID = f.id()
	cp := *t
	f.titles[t.ID] = &cp
	return t.ID, nil
}

func (f *fakeStore) UpdateTitleFields(_ context.Context, id int64, upd domain.TitleUpdate) error {
	t, ok := f.titles[id]
	if !ok {
		return notFound("update title fields")
	}
	t.Amount = upd.Amount
	t.IssueDate = upd.IssueDate
	t.DueDate = upd.DueDate
	t.Species = upd.Species
	t.Accept = upd.Accept
	t.OurNumber = upd.OurNumber
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) UpdateTitleStatus(_ context.Context, id int64, status domain.TitleStatus) error {
	t, ok := f.titles[id]
	if !ok {
		return notFound("update title status")
	}
	t.Status = status
	return nil
}

func (f *fakeStore) ListTitles(_ context.Context) ([]domain.Title, error) {
	var out []domain.Title
	for _, t := range f.titles {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) ListBatchTitles(_ context.Context, batchID int64) ([]domain.Title, error) {
	var out []domain.Title
	for _, t := range f.titles {
		if t.BatchID == batchID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertBatch(_ context.Context, b *domain.Batch) (int64, error) {
	b.ID = f.id()
	cp := *b
	f.batches[b.ID] = &cp
	return b.ID, nil
}

func (f *fakeStore) GetBatch(_ context.Context, id int64) (*domain.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, notFound("get batch")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) FindBatchByTask(_ context.Context, taskID string) (*domain.Batch, error) {
	for _, b := range f.batches {
		if b.TaskID == taskID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("find batch by task")
}

func (f *fakeStore) SetBatchTask(_ context.Context, id int64, taskID string) error {
	b, ok := f.batches[id]
	if !ok {
		return notFound("set batch task")
	}
	b.TaskID = taskID
	return nil
}

func (f *fakeStore) SetBatchTitleCount(_ context.Context, id int64, count int) error {
	b, ok := f.batches[id]
	if !ok {
		return notFound("set batch title count")
	}
	b.TitleCount = count
	return nil
}

func (f *fakeStore) SetBatchStatus(_ context.Context, id int64, status domain.BatchStatus, processedAt *time.Time) error {
	b, ok := f.batches[id]
	if !ok {
		return notFound("set batch status")
	}
	b.Status = status
	b.ProcessedAt = processedAt
	return nil
}

func (f *fakeStore) BatchStats(_ context.Context) (*domain.BatchStats, error) {
	stats := &domain.BatchStats{
		ByStatus: make(map[domain.BatchStatus]int64),
		ByKind:   make(map[domain.BatchKind]int64),
	}
	for _, b := range f.batches {
		stats.ByStatus[b.Status]++
		stats.ByKind[b.Kind]++
	}
	stats.TitlesTotal = int64(len(f.titles))
	return stats, nil
}

func (f *fakeStore) InsertWithdrawal(_ context.Context, w *domain.Withdrawal) (int64, error) {
	w.ID = f.id()
	cp := *w
	f.withdrawals[w.ID] = &cp
	return w.ID, nil
}

func (f *fakeStore) GetWithdrawal(_ context.Context, id int64) (*domain.Withdrawal, error) {
	w, ok := f.withdrawals[id]
	if !ok {
		return nil, notFound("get withdrawal")
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) FindPendingWithdrawalByTitle(_ context.Context, titleID int64) (*domain.Withdrawal, error) {
	for _, w := range f.withdrawals {
		if w.TitleID == titleID && w.Status == domain.WithdrawalPending {
			cp := *w
			return &cp, nil
		}
	}
	return nil, notFound("find pending withdrawal by title")
}

func (f *fakeStore) DecideWithdrawal(_ context.Context, id int64, status domain.WithdrawalStatus, notes string, processedAt time.Time, processorUserID int64) error {
	w, ok := f.withdrawals[id]
	if !ok {
		return notFound("decide withdrawal")
	}
	w.Status = status
	w.Notes = notes
	w.ProcessedAt = &processedAt
	w.ProcessorUserID = &processorUserID
	return nil
}

func (f *fakeStore) WithdrawalStats(_ context.Context) (*domain.WithdrawalStats, error) {
	stats := &domain.WithdrawalStats{ByStatus: make(map[domain.WithdrawalStatus]int64)}
	for _, w := range f.withdrawals {
		stats.ByStatus[w.Status]++
		stats.Total++
	}
	return stats, nil
}

func (f *fakeStore) InsertAuthorization(_ context.Context, a *domain.CancellationAuthorization) (int64, error) {
	a.ID = f.id()
	cp := *a
	f.authorizations[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeStore) GetAuthorization(_ context.Context, id int64) (*domain.CancellationAuthorization, error) {
	a, ok := f.authorizations[id]
	if !ok {
		return nil, notFound("get authorization")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) SetAuthorizationTask(_ context.Context, id int64, taskID string) error {
	a, ok := f.authorizations[id]
	if !ok {
		return notFound("set authorization task")
	}
	a.TaskID = taskID
	return nil
}

func (f *fakeStore) UpdateAuthorizationHeader(_ context.Context, in *domain.CancellationAuthorization) error {
	a, ok := f.authorizations[in.ID]
	if !ok {
		return notFound("update authorization header")
	}
	a.PresenterCode = in.PresenterCode
	a.PresenterName = in.PresenterName
	a.MovementDate = in.MovementDate
	a.DeclaredCount = in.DeclaredCount
	a.Sequence = in.Sequence
	return nil
}

func (f *fakeStore) FinishAuthorization(_ context.Context, id int64, status domain.AuthorizationStatus, processedAt time.Time) error {
	a, ok := f.authorizations[id]
	if !ok {
		return notFound("finish authorization")
	}
	a.Status = status
	a.ProcessedAt = &processedAt
	return nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, t *domain.CancellationTransaction) (int64, error) {
	t.ID = f.id()
	cp := *t
	f.transactions[t.ID] = &cp
	return t.ID, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id int64) (*domain.CancellationTransaction, error) {
	t, ok := f.transactions[id]
	if !ok {
		return nil, notFound("get transaction")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, authorizationID int64) ([]domain.CancellationTransaction, error) {
	var out []domain.CancellationTransaction
	for _, t := range f.transactions {
		if t.AuthorizationID == authorizationID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SetTransactionTitle(_ context.Context, id, titleID int64) error {
	t, ok := f.transactions[id]
	if !ok {
		return notFound("set transaction title")
	}
	t.TitleID = &titleID
	return nil
}

func (f *fakeStore) FinishTransaction(_ context.Context, id int64, status domain.TransactionStatus, processedAt time.Time) error {
	t, ok := f.transactions[id]
	if !ok {
		return notFound("finish transaction")
	}
	t.Status = status
	t.ProcessedAt = &processedAt
	return nil
}

func (f *fakeStore) InsertIngestError(_ context.Context, e *domain.IngestError) (int64, error) {
	e.ID = f.id()
	cp := *e
	f.ingestErrors[e.ID] = &cp
	return e.ID, nil
}

func (f *fakeStore) GetIngestError(_ context.Context, id int64) (*domain.IngestError, error) {
	e, ok := f.ingestErrors[id]
	if !ok {
		return nil, notFound("get ingest error")
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) ListIngestErrors(_ context.Context, resolved *bool) ([]domain.IngestError, error) {
	var out []domain.IngestError
	for _, e := range f.ingestErrors {
		if resolved != nil && e.Resolved != *resolved {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListBatchErrors(_ context.Context, batchID int64) ([]domain.IngestError, error) {
	var out []domain.IngestError
	for _, e := range f.ingestErrors {
		if e.BatchID != nil && *e.BatchID == batchID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ResolveIngestError(_ context.Context, id int64, message string, resolvedAt time.Time, resolverUserID int64) error {
	e, ok := f.ingestErrors[id]
	if !ok {
		return notFound("resolve ingest error")
	}
	e.Message = message
	e.Resolved = true
	e.ResolvedAt = &resolvedAt
	e.ResolverUserID = &resolverUserID
	return nil
}

func (f *fakeStore) CountUnresolvedBatchErrors(_ context.Context, batchID int64) (int64, error) {
	var n int64
	for _, e := range f.ingestErrors {
		if e.BatchID != nil && *e.BatchID == batchID && !e.Resolved {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) batchErrors(batchID int64) []domain.IngestError {
	out, _ := f.ListBatchErrors(context.Background(), batchID)
	return out
}

func (f *fakeStore) titleByProtocol(protocol string) *domain.Title {
	t, err := f.FindTitleByProtocol(context.Background(), protocol)
	if err != nil {
		return nil
	}
	return t
}

// fakeStorage keeps uploaded files in memory keyed by the original name.
type fakeStorage struct {
	files map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, originalName string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	key := "stored_" + originalName
	f.files[key] = raw
	return key, nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.files[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

// fakeRunner records enqueued tasks; tests invoke them synchronously.
type fakeRunner struct {
	descriptions []string
	fns          []ports.TaskFunc
}

func (f *fakeRunner) Enqueue(description string, fn ports.TaskFunc) string {
	f.descriptions = append(f.descriptions, description)
	f.fns = append(f.fns, fn)
	return fmt.Sprintf("task-%d", len(f.fns))
}

func (f *fakeRunner) Status(string) (domain.TaskStatus, bool) { return domain.TaskStatus{}, false }
func (f *fakeRunner) List(domain.TaskState, int) []domain.TaskStatus {
	return nil
}
func (f *fakeRunner) ListActive() []domain.TaskStatus { return nil }
func (f *fakeRunner) UpdateProgress(string, int)      {}

func (f *fakeRunner) runAll(ctx context.Context) error {
	for _, fn := range f.fns {
		if err := fn(ctx, func(int) {}); err != nil {
			return err
		}
	}
	return nil
}
