package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/memstore"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/report"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store *memstore.Store
	proc  *processor.Processor
	e     *echo.Echo
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ms := memstore.New()
	stores := processor.Stores{
		Movements:      ms.Movements,
		Payables:       ms.Payables,
		Checks:         ms.Checks,
		Ambiguous:      ms.Ambiguous,
		Settlements:    ms.Settlements,
		Cash:           ms.Cash,
		Counterparties: ms.Counterparties,
		Runs:           ms.Runs,
	}
	dir := t.TempDir()
	e := NewServer(Deps{
		Movements: ms.Movements,
		Payables:  ms.Payables,
		Runs:      ms.Runs,
		Imports:   ms.Imports,
		Jobs:      ms.Jobs,
		Queue:     processor.NewQueue(stores, nil, logger),
		Checks:    checks.NewService(ms.Checks, logger),
		Server:    config.ServerConfig{UploadDir: dir, MaxUploadBytes: 1 << 10},
		Logger:    logger,
	})
	proc := processor.New(stores, nil, nil, nil, processor.DefaultConfig(), logger)
	return &fixture{store: ms, proc: proc, e: e, dir: dir}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// ambiguousRun leaves one movement with two same-amount candidates in the
// review queue.
func (f *fixture) ambiguousRun(t *testing.T) *processor.Summary {
	t.Helper()
	f.store.AddPayable(models.Payable{ID: "inv-a", Kind: models.PayableInvoice, Amount: decimal.RequireFromString("500.00"), Counterparty: "ROSSI FORNITURE SRL", DocumentDate: day(2024, 3, 20)})
	f.store.AddPayable(models.Payable{ID: "inv-b", Kind: models.PayableInvoice, Amount: decimal.RequireFromString("500.00"), Counterparty: "BIANCHI SPA", DocumentDate: day(2024, 4, 1)})
	f.store.AddPayable(models.Payable{ID: "inv-c", Kind: models.PayableInvoice, Amount: decimal.RequireFromString("75.00"), Counterparty: "VERDI SNC", DocumentDate: day(2024, 1, 5)})
	_, err := f.store.Movements.InsertMany(context.Background(), []models.BankMovement{{
		ID: "m1", ImportID: "imp-1", Position: 1, Date: day(2024, 4, 10),
		Amount: decimal.RequireFromString("-500.00"), Description: "BONIFICO SEPA",
	}})
	require.NoError(t, err)

	summary, err := f.proc.Run(context.Background(), processor.Options{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, summary.NewAmbiguous, 1)
	return summary
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	content := []byte("Data;Descrizione;Importo\n05/03/2024;PAGAMENTO FT 1234;-150,00\n")

	rec := f.upload(t, "estratto.csv", content)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UploadResponse
	decode(t, rec, &resp)
	assert.Equal(t, models.JobStatusQueued, resp.Status)

	imp, err := f.store.Imports.GetImport(context.Background(), resp.ImportID)
	require.NoError(t, err)
	assert.Equal(t, "estratto.csv", imp.Filename)

	job, err := f.store.Jobs.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobImport, job.Kind)
	require.NotNil(t, job.ImportID)
	assert.Equal(t, resp.ImportID, *job.ImportID)
	require.NotNil(t, job.FilePath)
	saved, err := os.ReadFile(*job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, content, saved)
}

func TestUpload_Rejected(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
	}{
		{"wrong extension", "estratto.pdf", []byte("x"), http.StatusBadRequest},
		{"empty file", "estratto.csv", nil, http.StatusBadRequest},
		{"too large", "estratto.csv", bytes.Repeat([]byte("a"), 2<<10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.upload(t, tt.filename, tt.content)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(http.MethodPost, "/api/statements", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	jobs, err := f.store.Jobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestEnqueueJobs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/runs", `{"includeRejected":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var run JobResponse
	decode(t, rec, &run)
	require.NotNil(t, run.RunID)

	job, err := f.store.Jobs.GetJob(context.Background(), run.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRun, job.Kind)
	assert.True(t, job.IncludeRejected)
	assert.Equal(t, *run.RunID, *job.RunID)

	rec = f.do(http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var reset JobResponse
	decode(t, rec, &reset)
	assert.Nil(t, reset.RunID)

	rec = f.do(http.MethodPost, "/api/repair", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodGet, "/api/jobs/"+reset.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Job
	decode(t, rec, &got)
	assert.Equal(t, models.JobReset, got.Kind)
	assert.Equal(t, models.JobStatusQueued, got.Status)

	rec = f.do(http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/runs", `{"includeRejected":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunAndExport(t *testing.T) {
	f := newFixture(t)
	f.ambiguousRun(t)

	rec := f.do(http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RunResponse
	decode(t, rec, &resp)
	assert.Equal(t, processor.RunStatusCompleted, resp.Run.Status)
	assert.Equal(t, 1, resp.Run.AmbiguousCount)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 1, resp.Summary.Processed)

	rec = f.do(http.MethodGet, "/api/runs/run-1/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "run-run-1.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(report.AmbiguousSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "heading plus one row per candidate")

	rec = f.do(http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAmbiguousReview(t *testing.T) {
	f := newFixture(t)
	summary := f.ambiguousRun(t)
	matchID := summary.NewAmbiguous[0].ID

	rec := f.do(http.MethodGet, "/api/ambiguous", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list AmbiguousListResponse
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, matchID, list.Items[0].ID)

	rec = f.do(http.MethodGet, "/api/ambiguous?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/confirm", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var verr struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &verr)
	assert.Equal(t, map[string]string{"payableId": "required"}, verr.Fields)

	rec = f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/confirm", `{"payableId":"inv-c"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/ambiguous/missing/confirm", `{"payableId":"inv-a"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/confirm", `{"payableId":"inv-a"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed models.AmbiguousMatch
	decode(t, rec, &confirmed)
	assert.Equal(t, models.AmbiguousConfirmed, confirmed.Status)

	rec = f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/confirm", `{"payableId":"inv-b"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/reject", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/ambiguous?status=confirmed", "")
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = f.do(http.MethodGet, "/api/movements/m1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail MovementDetailResponse
	decode(t, rec, &detail)
	assert.Equal(t, models.MovementReconciledManual, detail.Movement.Status)
	require.NotNil(t, detail.Payable)
	assert.Equal(t, "inv-a", detail.Payable.ID)
	assert.True(t, detail.Payable.Paid)
}

func TestAmbiguousReject(t *testing.T) {
	f := newFixture(t)
	summary := f.ambiguousRun(t)
	matchID := summary.NewAmbiguous[0].ID

	rec := f.do(http.MethodPost, "/api/ambiguous/"+matchID+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected models.AmbiguousMatch
	decode(t, rec, &rejected)
	assert.Equal(t, models.AmbiguousRejected, rejected.Status)

	rec = f.do(http.MethodGet, "/api/ambiguous", "")
	var list AmbiguousListResponse
	decode(t, rec, &list)
	assert.Zero(t, list.Count)
	assert.NotNil(t, list.Items)
}

func TestListMovements(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Movements.InsertMany(context.Background(), []models.BankMovement{
		{ID: "m1", ImportID: "imp-1", Position: 1, Date: day(2024, 4, 10), Amount: decimal.RequireFromString("-10.00"), Description: "A"},
		{ID: "m2", ImportID: "imp-1", Position: 2, Date: day(2024, 4, 11), Amount: decimal.RequireFromString("20.00"), Description: "B"},
		{ID: "m3", ImportID: "imp-2", Position: 1, Date: day(2024, 4, 12), Amount: decimal.RequireFromString("30.00"), Description: "C"},
	})
	require.NoError(t, err)

	tests := []struct {
		query string
		ids   []string
		total int
	}{
		{"", []string{"m1", "m2", "m3"}, 3},
		{"?importId=imp-1", []string{"m1", "m2"}, 2},
		{"?status=unreconciled&limit=1", []string{"m1"}, 3},
		{"?status=reconciled_auto", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/movements"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var resp MovementsResponse
			decode(t, rec, &resp)
			ids := []string{}
			for _, m := range resp.Items {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, tt.total, resp.Total)
		})
	}

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/movements?status=done", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/movements?limit=0", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/movements/missing", "").Code)
}

func TestListPayables(t *testing.T) {
	f := newFixture(t)
	number := "FT-88"
	f.store.AddPayable(models.Payable{ID: "inv-1", Kind: models.PayableInvoice, Number: &number, Amount: decimal.RequireFromString("10"), Counterparty: "ROSSI SRL", DocumentDate: day(2024, 1, 1)})
	f.store.AddPayable(models.Payable{ID: "f24-1", Kind: models.PayableTaxFiling, Amount: decimal.RequireFromString("99"), Counterparty: "ERARIO", DocumentDate: day(2024, 1, 16), Paid: true})

	tests := []struct {
		query string
		ids   []string
	}{
		{"", []string{"inv-1", "f24-1"}},
		{"?kind=tax_filing", []string{"f24-1"}},
		{"?paid=false", []string{"inv-1"}},
		{"?q=ft-8", []string{"inv-1"}},
		{"?q=erario&paid=false", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/payables"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var resp PayablesResponse
			decode(t, rec, &resp)
			ids := []string{}
			for _, p := range resp.Items {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/payables?kind=receipt", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/payables?paid=maybe", "").Code)
}

func TestChecks(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/checks/batches", `{"prefix":"AB","start":100,"count":3,"width":7}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var batch BatchResponse
	decode(t, rec, &batch)
	require.Len(t, batch.Checks, 3)
	assert.Equal(t, "AB-0000100", batch.Checks[0].Number)
	id := batch.Checks[0].ID

	rec = f.do(http.MethodPost, "/api/checks/batches", `{"prefix":"AB","start":102,"count":2,"width":7}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var dup struct {
		Conflicts []string `json:"conflicts"`
	}
	decode(t, rec, &dup)
	assert.Equal(t, []string{"AB-0000102"}, dup.Conflicts)

	rec = f.do(http.MethodPost, "/api/checks/batches", `{"prefix":"AB","start":1,"count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/fill", `{"beneficiary":"ROSSI SRL","amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/issue", `{"date":"2024-05-02"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "a blank check cannot be issued")

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/fill", `{"beneficiary":"ROSSI SRL","amount":"250.00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var check models.Check
	decode(t, rec, &check)
	assert.Equal(t, models.CheckFilled, check.State)
	assert.True(t, check.Amount.Decimal.Equal(decimal.RequireFromString("250")))

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/issue", `{"date":"02/05/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/issue", `{"date":"2024-05-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &check)
	assert.Equal(t, models.CheckIssued, check.State)
	require.NotNil(t, check.IssueDate)
	assert.True(t, check.IssueDate.Equal(day(2024, 5, 2)))

	rec = f.do(http.MethodPost, "/api/checks/"+id+"/void", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/api/checks/"+id+"/void", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/checks/"+batch.Checks[1].ID+"/expire", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/checks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &check)
	assert.Equal(t, models.CheckVoid, check.State)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/checks/missing", "").Code)
}
