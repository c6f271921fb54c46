package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/memstore"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/statement"
)

type fakeEngine struct {
	mu      sync.Mutex
	runs    []processor.Options
	resets  int
	repairs int
	err     error
}

func (e *fakeEngine) Run(_ context.Context, opts processor.Options) (*processor.Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.runs = append(e.runs, opts)
	id := opts.RunID
	if id == "" {
		id = "generated"
	}
	return &processor.Summary{RunID: id}, nil
}

func (e *fakeEngine) Reset(context.Context) (*processor.ResetSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.resets++
	return &processor.ResetSummary{RunID: "reset-1"}, nil
}

func (e *fakeEngine) Repair(context.Context) (*processor.RepairSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.repairs++
	return &processor.RepairSummary{RunID: "repair-1"}, nil
}

func (e *fakeEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

type fixture struct {
	store  *memstore.Store
	engine *fakeEngine
	worker *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memstore.New()
	engine := &fakeEngine{}
	importer := statement.NewImporter(store.Movements, store.Imports, logger)
	w := New(store.Jobs, engine, importer, config.WorkerConfig{PollInterval: 5 * time.Millisecond, MaxAttempts: 1}, logger)
	return &fixture{store: store, engine: engine, worker: w}
}

func (f *fixture) enqueue(t *testing.T, job models.Job) {
	t.Helper()
	require.NoError(t, f.store.Jobs.Enqueue(context.Background(), &job))
}

func (f *fixture) job(t *testing.T, id string) *models.Job {
	t.Helper()
	job, err := f.store.Jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func str(s string) *string { return &s }

func TestProcessNext_EmptyQueue(t *testing.T) {
	f := newFixture(t)
	worked, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestProcessNext_Run(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobRun, RunID: str("run-9"), IncludeRejected: true})

	worked, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.Len(t, f.engine.runs, 1)
	assert.Equal(t, processor.Options{RunID: "run-9", IncludeRejected: true}, f.engine.runs[0])

	job := f.job(t, "j1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "run-9", *job.RunID)
	assert.Equal(t, 1, job.Attempts)
}

func TestProcessNext_ResetAndRepair(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobReset})
	f.enqueue(t, models.Job{ID: "j2", Kind: models.JobRepair})

	for i := 0; i < 2; i++ {
		_, err := f.worker.ProcessNext(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.engine.resets)
	assert.Equal(t, 1, f.engine.repairs)
	assert.Equal(t, "reset-1", *f.job(t, "j1").RunID)
	assert.Equal(t, "repair-1", *f.job(t, "j2").RunID)
}

func TestProcessNext_FailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.engine.err = errors.New("database gone")
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobReset})

	worked, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	job := f.job(t, "j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "database gone", *job.LastError)

	worked, err = f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestProcessNext_RunInProgressIsRequeued(t *testing.T) {
	f := newFixture(t)
	f.engine.err = models.ErrRunInProgress
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobRun})

	worked, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Equal(t, models.JobStatusQueued, f.job(t, "j1").Status)

	f.engine.err = nil
	worked, err = f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	job := f.job(t, "j1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestProcessNext_UnknownKind(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, models.Job{ID: "j1", Kind: "archive"})

	_, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	job := f.job(t, "j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, *job.LastError, "unknown job kind")
}

func TestProcessNext_ImportThenRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "estratto.csv")
	require.NoError(t, os.WriteFile(path, []byte("Data;Descrizione;Importo\n05/03/2024;PAGAMENTO FT 1234;-150,00\n"), 0o644))

	for _, id := range []string{"imp-1", "imp-2"} {
		require.NoError(t, f.store.Imports.CreateImport(ctx, &models.StatementImport{ID: id, Filename: "estratto.csv"}))
		f.enqueue(t, models.Job{ID: "job-" + id, Kind: models.JobImport, ImportID: str(id), FilePath: str(path)})
	}

	for i := 0; i < 2; i++ {
		_, err := f.worker.ProcessNext(ctx)
		require.NoError(t, err)
	}

	movements, err := f.store.Movements.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, movements, 1)
	assert.Equal(t, 1, f.engine.runCount(), "a statement with nothing new does not trigger a run")

	first := f.job(t, "job-imp-1")
	assert.Equal(t, models.JobStatusCompleted, first.Status)
	assert.Equal(t, "generated", *first.RunID)
	second := f.job(t, "job-imp-2")
	assert.Equal(t, models.JobStatusCompleted, second.Status)
	assert.Nil(t, second.RunID)
}

func TestProcessNext_ImportWithoutFile(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobImport})

	_, err := f.worker.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, f.job(t, "j1").Status)
}

func TestStart_RecoversStaleJobsAndStops(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Hour)
	f.store.Now = func() time.Time { return past }
	f.enqueue(t, models.Job{ID: "j1", Kind: models.JobRepair})
	claimed, err := f.store.Jobs.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	f.store.Now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.job(t, "j1").Status == models.JobStatusCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
