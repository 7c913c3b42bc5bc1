package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"blood-bank-api-server/config"
	"blood-bank-api-server/internal/auth"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/ledger/ledgertest"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryDocuments struct {
	mu   sync.Mutex
	docs []models.BatchDocument
}

func (m *memoryDocuments) Insert(_ context.Context, doc *models.BatchDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = primitive.NewObjectID()
	m.docs = append(m.docs, *doc)
	return nil
}

func (m *memoryDocuments) ListByBatch(_ context.Context, hospitalID, batchID string) ([]models.BatchDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BatchDocument
	for _, d := range m.docs {
		if d.HospitalID == hospitalID && d.BatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeUploader struct {
	keys []string
}

func (f *fakeUploader) UploadFile(_ context.Context, file io.Reader, objectKey, _ string) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	f.keys = append(f.keys, objectKey)
	return "https://cdn.example.org/" + objectKey, nil
}

type testServer struct {
	router *gin.Engine
	repo   *ledgertest.MemoryRepository
	tokens *auth.Manager
	docs   *memoryDocuments
	staff  string
	other  string
	super  string
}

func newTestServer(t *testing.T, uploader *fakeUploader, units ...models.BloodUnit) *testServer {
	t.Helper()
	repo := ledgertest.NewMemoryRepository(units...)
	tokens := auth.NewManager("test-secret", time.Hour, 2*time.Hour)
	docs := &memoryDocuments{}

	deps := Dependencies{
		Cfg:       config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}},
		Log:       logger.Nop(),
		Ledger:    ledger.New(repo),
		Tokens:    tokens,
		Documents: docs,
	}
	if uploader != nil {
		deps.Uploader = uploader
	}

	issue := func(u models.User) string {
		pair, err := tokens.IssuePair(u)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return pair.AccessToken
	}

	return &testServer{
		router: SetupRouter(deps),
		repo:   repo,
		tokens: tokens,
		docs:   docs,
		staff:  issue(models.User{Email: "nurse@city.example", Role: models.RoleStaff, HospitalID: "city-general"}),
		other:  issue(models.User{Email: "nurse@north.example", Role: models.RoleAdmin, HospitalID: "north-clinic"}),
		super:  issue(models.User{Email: "root@example.com", Role: models.RoleSuperAdmin, HospitalID: "system"}),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

func stored(hospitalID, bloodType string, qty float64, expiresIn time.Duration, status string) models.BloodUnit {
	now := time.Now()
	return models.BloodUnit{
		ID:             primitive.NewObjectID(),
		HospitalID:     hospitalID,
		BloodType:      bloodType,
		BatchID:        "CAMP-1",
		QuantityMl:     qty,
		CollectionDate: now.Add(expiresIn - ledger.ExpiryPeriod),
		ExpiryDate:     now.Add(expiresIn),
		Status:         status,
		CreatedAt:      now,
	}
}

const day = 24 * time.Hour

func TestInventoryRequiresHospitalCredential(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(t, http.MethodGet, "/api/v1/inventory", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/inventory", s.super, nil); w.Code != http.StatusForbidden {
		t.Errorf("superadmin: expected 403, got %d", w.Code)
	}
}

func TestGetInventory(t *testing.T) {
	s := newTestServer(t, nil,
		stored("city-general", "A+", 450, 3*day, models.UnitStatusAvailable),
		stored("city-general", "A+", 450, 20*day, models.UnitStatusAvailable),
		stored("north-clinic", "O-", 2000, 20*day, models.UnitStatusAvailable),
	)

	w := s.do(t, http.MethodGet, "/api/v1/inventory", s.staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decode[struct {
		Inventory []struct {
			BloodType       string  `json:"blood_type"`
			TotalQuantityMl float64 `json:"total_quantity_ml"`
			UnitCount       int     `json:"unit_count"`
			ExpiringSoon    int     `json:"expiring_soon"`
			IsCritical      bool    `json:"is_critical"`
		} `json:"inventory"`
		LastUpdated time.Time `json:"last_updated"`
	}](t, w)

	if len(body.Inventory) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(body.Inventory))
	}
	if body.LastUpdated.IsZero() {
		t.Error("expected last_updated")
	}
	for _, e := range body.Inventory {
		switch e.BloodType {
		case "A+":
			if e.TotalQuantityMl != 900 || e.UnitCount != 2 || e.ExpiringSoon != 1 || e.IsCritical {
				t.Errorf("unexpected A+ entry: %+v", e)
			}
		case "O-":
			if e.UnitCount != 0 || !e.IsCritical {
				t.Errorf("another hospital's stock leaked into O-: %+v", e)
			}
		}
	}
}

func TestUpdateStockAdd(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPut, "/api/v1/inventory/update", s.staff, map[string]any{
		"blood_type":      "AB-",
		"quantity_change": 450,
		"operation":       "add",
		"reason":          "donation",
		"batch_id":        "CAMP-7",
		"donor_id":        "donor-12",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decode[struct {
		Operation string           `json:"operation"`
		Unit      models.BloodUnit `json:"unit"`
	}](t, w)
	if body.Operation != "add" {
		t.Errorf("expected operation echo, got %q", body.Operation)
	}
	u := body.Unit
	if u.HospitalID != "city-general" || u.Status != models.UnitStatusAvailable || u.QuantityMl != 450 || u.BatchID != "CAMP-7" || u.DonorID != "donor-12" {
		t.Errorf("unexpected unit: %+v", u)
	}
	if got := u.ExpiryDate.Sub(u.CollectionDate); got != 35*day {
		t.Errorf("expected 35 day shelf life, got %v", got)
	}
	if n := len(s.repo.Units()); n != 1 {
		t.Errorf("expected one stored unit, got %d", n)
	}
}

func TestUpdateStockRemove(t *testing.T) {
	s := newTestServer(t, nil,
		stored("city-general", "O+", 350, 9*day, models.UnitStatusAvailable),
		stored("city-general", "O+", 350, 2*day, models.UnitStatusAvailable),
		stored("city-general", "O+", 350, 5*day, models.UnitStatusAvailable),
	)

	w := s.do(t, http.MethodPut, "/api/v1/inventory/update", s.staff, map[string]any{
		"blood_type":      "O+",
		"quantity_change": 1750,
		"operation":       "remove",
		"reason":          "request",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode[struct {
		Operation    string `json:"operation"`
		Reason       string `json:"reason"`
		UnitsUpdated int    `json:"units_updated"`
	}](t, w)
	if body.Operation != "remove" || body.Reason != "request" || body.UnitsUpdated != 3 {
		t.Errorf("unexpected response: %+v", body)
	}
}

func TestUpdateStockFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		want    int
		message string
	}{
		{"unknown blood type", map[string]any{"blood_type": "C+", "quantity_change": 350, "operation": "add"}, http.StatusBadRequest, "blood_type"},
		{"unknown operation", map[string]any{"blood_type": "A+", "quantity_change": 350, "operation": "transfer"}, http.StatusBadRequest, "operation"},
		{"missing quantity", map[string]any{"blood_type": "A+", "operation": "add"}, http.StatusBadRequest, "quantity_change"},
		{"negative quantity", map[string]any{"blood_type": "A+", "quantity_change": -5, "operation": "add"}, http.StatusBadRequest, "quantity_change"},
		{"unknown reason", map[string]any{"blood_type": "A+", "quantity_change": 350, "operation": "remove", "reason": "lost"}, http.StatusBadRequest, "reason"},
		{"remove without reason", map[string]any{"blood_type": "A+", "quantity_change": 350, "operation": "remove"}, http.StatusBadRequest, "reason"},
		{"remove for donation", map[string]any{"blood_type": "A+", "quantity_change": 350, "operation": "remove", "reason": "donation"}, http.StatusBadRequest, "donation"},
		{"empty pool", map[string]any{"blood_type": "B-", "quantity_change": 350, "operation": "remove", "reason": "expired"}, http.StatusNotFound, "no available units"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, stored("city-general", "A+", 350, 4*day, models.UnitStatusAvailable))

			w := s.do(t, http.MethodPut, "/api/v1/inventory/update", s.staff, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if msg := decode[errorBody](t, w).Error; !strings.Contains(msg, tt.message) {
				t.Errorf("expected message mentioning %q, got %q", tt.message, msg)
			}

			units := s.repo.Units()
			if len(units) != 1 || units[0].Status != models.UnitStatusAvailable {
				t.Errorf("failure must not change state: %+v", units)
			}
		})
	}
}

func TestUpdateStockHidesInternalErrors(t *testing.T) {
	s := newTestServer(t, nil)
	s.repo.InsertErr = errors.New("mongo: connection pool exhausted on 10.0.0.7")

	w := s.do(t, http.MethodPut, "/api/v1/inventory/update", s.staff, map[string]any{
		"blood_type": "A+", "quantity_change": 350, "operation": "add",
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if msg := decode[errorBody](t, w).Error; msg != "Failed to update blood stock" || strings.Contains(msg, "10.0.0.7") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

func TestGetExpiring(t *testing.T) {
	s := newTestServer(t, nil,
		stored("city-general", "A+", 300, 2*day, models.UnitStatusAvailable),
		stored("city-general", "B+", 450, 1*day, models.UnitStatusAvailable),
		stored("city-general", "B+", 450, 6*day, models.UnitStatusAvailable),
		stored("city-general", "O-", 350, 1*day, models.UnitStatusAllocated),
		stored("north-clinic", "O-", 350, 1*day, models.UnitStatusAvailable),
	)

	w := s.do(t, http.MethodGet, "/api/v1/inventory/expiring?days=3", s.staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode[struct {
		Units           []models.BloodUnit `json:"units"`
		Count           int                `json:"count"`
		TotalQuantityMl float64            `json:"total_quantity_ml"`
		Days            int                `json:"days"`
	}](t, w)
	if body.Count != 2 || body.TotalQuantityMl != 750 || body.Days != 3 {
		t.Fatalf("unexpected report: %+v", body)
	}
	if body.Units[0].BloodType != "B+" || body.Units[1].BloodType != "A+" {
		t.Errorf("expected ascending expiry order, got %s then %s", body.Units[0].BloodType, body.Units[1].BloodType)
	}

	w = s.do(t, http.MethodGet, "/api/v1/inventory/expiring", s.staff, nil)
	if got := decode[struct {
		Count int `json:"count"`
		Days  int `json:"days"`
	}](t, w); got.Days != 7 || got.Count != 3 {
		t.Errorf("default window: expected 3 units over 7 days, got %+v", got)
	}

	for _, q := range []string{"abc", "-1", "400"} {
		if w := s.do(t, http.MethodGet, "/api/v1/inventory/expiring?days="+q, s.staff, nil); w.Code != http.StatusBadRequest {
			t.Errorf("days=%s: expected 400, got %d", q, w.Code)
		}
	}
}

func multipartBody(t *testing.T, fileName, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()
	return buf, mw.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, path, token, fileName, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fileName, contentType, "%PDF-1.7 test")
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestBatchDocuments(t *testing.T) {
	uploader := &fakeUploader{}
	s := newTestServer(t, uploader,
		stored("city-general", "A+", 350, 4*day, models.UnitStatusAvailable),
		stored("city-general", "A+", 350, 6*day, models.UnitStatusDisposed),
	)

	if w := s.do(t, http.MethodGet, "/api/v1/inventory/batches/UNKNOWN", s.staff, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown batch: expected 404, got %d", w.Code)
	}
	if w := s.upload(t, "/api/v1/inventory/batches/UNKNOWN/documents", s.staff, "cert.pdf", "application/pdf"); w.Code != http.StatusNotFound {
		t.Errorf("upload to unknown batch: expected 404, got %d", w.Code)
	}
	if w := s.upload(t, "/api/v1/inventory/batches/CAMP-1/documents", s.staff, "run.exe", "application/x-msdownload"); w.Code != http.StatusBadRequest {
		t.Errorf("bad content type: expected 400, got %d", w.Code)
	}

	w := s.upload(t, "/api/v1/inventory/batches/CAMP-1/documents", s.staff, "cert.pdf", "application/pdf")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(uploader.keys) != 1 || !strings.HasPrefix(uploader.keys[0], "batches/city-general/CAMP-1/") || !strings.HasSuffix(uploader.keys[0], "-cert.pdf") {
		t.Errorf("unexpected object keys: %v", uploader.keys)
	}

	w = s.do(t, http.MethodGet, "/api/v1/inventory/batches/CAMP-1", s.staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get batch: expected 200, got %d", w.Code)
	}
	body := decode[struct {
		Units        []models.BloodUnit     `json:"units"`
		Documents    []models.BatchDocument `json:"documents"`
		StatusCounts map[string]int         `json:"status_counts"`
	}](t, w)
	if len(body.Units) != 2 || len(body.Documents) != 1 {
		t.Fatalf("unexpected batch view: %+v", body)
	}
	if body.Documents[0].UploadedBy != "nurse@city.example" || body.Documents[0].FileType != "application/pdf" {
		t.Errorf("unexpected document: %+v", body.Documents[0])
	}
	if body.StatusCounts[models.UnitStatusAvailable] != 1 || body.StatusCounts[models.UnitStatusDisposed] != 1 {
		t.Errorf("unexpected status counts: %v", body.StatusCounts)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/inventory/batches/CAMP-1", s.other, nil); w.Code != http.StatusNotFound {
		t.Errorf("other hospital: expected 404, got %d", w.Code)
	}
}

func TestBatchUploadWithoutStorage(t *testing.T) {
	s := newTestServer(t, nil, stored("city-general", "A+", 350, 4*day, models.UnitStatusAvailable))
	if w := s.upload(t, "/api/v1/inventory/batches/CAMP-1/documents", s.staff, "cert.pdf", "application/pdf"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
