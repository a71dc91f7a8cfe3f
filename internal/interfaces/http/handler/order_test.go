package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/repository"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/messaging"
	redisstore "github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memOrderRepo 内存订单仓储，测试用。
type memOrderRepo struct {
	orders    map[string]*entity.Order
	byIdemKey map[string]string
	createErr error
	getErr    error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders:    make(map[string]*entity.Order),
		byIdemKey: make(map[string]string),
	}
}

func (r *memOrderRepo) put(order *entity.Order) {
	r.orders[order.ID] = order
	if order.IdempotencyKey != "" {
		r.byIdemKey[order.IdempotencyKey] = order.ID
	}
}

func (r *memOrderRepo) Create(_ context.Context, order *entity.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(order)
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id string) (*entity.Order, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.orders[id], nil
}

func (r *memOrderRepo) Update(_ context.Context, order *entity.Order) error {
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) ListByUser(_ context.Context, userID string, p repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	var items []*entity.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			items = append(items, o)
		}
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (r *memOrderRepo) List(_ context.Context, filter *repository.OrderFilter, p repository.Pagination) (*repository.PagedResult[*entity.Order], error) {
	var items []*entity.Order
	for _, o := range r.orders {
		if filter != nil && filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter != nil && filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter != nil && filter.WorkType != "" && o.WorkType != filter.WorkType {
			continue
		}
		items = append(items, o)
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (r *memOrderRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.Order, error) {
	id, ok := r.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	return r.orders[id], nil
}

func (r *memOrderRepo) UpdateProgress(_ context.Context, id string, progress int, stage string) error {
	if o, ok := r.orders[id]; ok {
		o.Progress = progress
		o.Stage = stage
	}
	return nil
}

func (r *memOrderRepo) GetOrderStats(_ context.Context) (*repository.OrderStats, error) {
	stats := &repository.OrderStats{TotalOrders: int64(len(r.orders))}
	for _, o := range r.orders {
		switch o.Status {
		case entity.OrderStatusCreated:
			stats.CreatedOrders++
		case entity.OrderStatusGenerating:
			stats.GeneratingOrders++
		case entity.OrderStatusCompleted:
			stats.CompletedOrders++
		case entity.OrderStatusFailed:
			stats.FailedOrders++
		}
	}
	return stats, nil
}

// capturePublisher 记录投递的任务，可配置失败。
type capturePublisher struct {
	jobs []*messaging.WorkGenJobMessage
	err  error
}

func (p *capturePublisher) PublishWorkGenJob(_ context.Context, job *messaging.WorkGenJobMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, job)
	return "msg-" + job.OrderID, nil
}

// staticProgress 返回固定的进度快照。
type staticProgress struct {
	snapshot *redisstore.ProgressSnapshot
	err      error
}

func (s *staticProgress) Get(_ context.Context, _ string) (*redisstore.ProgressSnapshot, error) {
	return s.snapshot, s.err
}

// passthroughTx 直接执行回调，不开真实事务
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openrouter"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"openrouter": {Model: "google/gemini-flash-lite"},
	}
	cfg.Billing.BasePrice = 100
	cfg.Billing.ModelMultipliers = map[string]float64{
		"gemini-flash-lite": 1.0,
		"deepseek-chat":     1.5,
		"gpt-4o-mini":       2.0,
	}
	cfg.Messaging.RedisStream.RetryLimit = 3
	cfg.Security.JWT.Secret = "test-secret"
	cfg.Security.JWT.Issuer = "kursovik-ai"
	cfg.Security.JWT.Expiration = time.Hour
	cfg.Security.Admin.Username = "admin"
	cfg.Security.Admin.Password = "correct-horse"
	return cfg
}

type orderTestEnv struct {
	repo     *memOrderRepo
	producer *capturePublisher
	progress *staticProgress
	engine   *gin.Engine
}

func newOrderTestEnv(cfg *config.Config) *orderTestEnv {
	env := &orderTestEnv{
		repo:     newMemOrderRepo(),
		producer: &capturePublisher{},
		progress: &staticProgress{},
	}

	pricing := service.NewPriceCalculator(cfg.Billing.BasePrice, cfg.Billing.ModelMultipliers)
	h := NewOrderHandler(env.repo, passthroughTx{}, env.producer, env.progress, pricing, cfg)

	engine := gin.New()
	engine.POST("/v1/orders", h.CreateOrder)
	engine.GET("/v1/orders/:id", h.GetOrder)
	engine.GET("/v1/orders/:id/progress", h.GetProgress)
	engine.GET("/v1/orders/:id/tex", h.DownloadTex)
	engine.GET("/v1/orders/:id/pdf", h.DownloadPDF)
	engine.GET("/v1/orders/:id/docx", h.DownloadDocx)
	engine.GET("/v1/users/:uid/orders", h.ListUserOrders)
	env.engine = engine
	return env
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return envelope.Data
}

func TestCreateOrder(t *testing.T) {
	env := newOrderTestEnv(testConfig())

	w := doJSON(t, env.engine, http.MethodPost, "/v1/orders", map[string]any{
		"user_id":   "user-7",
		"theme":     "Анализ алгоритмов сортировки",
		"pages":     20,
		"work_type": "coursework",
		"model":     "deepseek/deepseek-chat-v3",
	}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body=%s", w.Code, w.Body.String())
	}

	data := decodeData(t, w)
	if data["status"] != "created" {
		t.Errorf("status = %v, want created", data["status"])
	}
	if data["price"] != float64(149) {
		t.Errorf("price = %v, want 149", data["price"])
	}
	if data["currency"] != "XTR" {
		t.Errorf("currency = %v, want XTR", data["currency"])
	}
	if data["artifacts"] != nil {
		t.Errorf("artifacts should be absent on a fresh order, got %v", data["artifacts"])
	}

	if len(env.producer.jobs) != 1 {
		t.Fatalf("published jobs = %d, want 1", len(env.producer.jobs))
	}
	job := env.producer.jobs[0]
	if job.OrderID == "" || job.Theme != "Анализ алгоритмов сортировки" || job.Pages != 20 {
		t.Errorf("unexpected job payload: %+v", job)
	}
	if _, ok := env.repo.orders[job.OrderID]; !ok {
		t.Error("order was not persisted")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing theme", map[string]any{"user_id": "u", "pages": 10, "work_type": "coursework"}},
		{"blank theme", map[string]any{"user_id": "u", "theme": "   ", "pages": 10, "work_type": "coursework"}},
		{"zero pages", map[string]any{"user_id": "u", "theme": "t", "pages": 0, "work_type": "coursework"}},
		{"too many pages", map[string]any{"user_id": "u", "theme": "t", "pages": 101, "work_type": "coursework"}},
		{"unknown work type", map[string]any{"user_id": "u", "theme": "t", "pages": 10, "work_type": "poem"}},
		{"missing user", map[string]any{"theme": "t", "pages": 10, "work_type": "coursework"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newOrderTestEnv(testConfig())
			w := doJSON(t, env.engine, http.MethodPost, "/v1/orders", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body=%s", w.Code, w.Body.String())
			}
			if len(env.producer.jobs) != 0 {
				t.Errorf("no job should be published on validation failure")
			}
		})
	}
}

func TestCreateOrderIdempotency(t *testing.T) {
	env := newOrderTestEnv(testConfig())

	body := map[string]any{
		"user_id":   "user-7",
		"theme":     "Тема",
		"pages":     5,
		"work_type": "report",
		"model":     "test",
	}
	headers := map[string]string{"Idempotency-Key": "idem-123"}

	first := doJSON(t, env.engine, http.MethodPost, "/v1/orders", body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: status = %d, want 201", first.Code)
	}

	second := doJSON(t, env.engine, http.MethodPost, "/v1/orders", body, headers)
	if second.Code != http.StatusOK {
		t.Fatalf("replay: status = %d, want 200; body=%s", second.Code, second.Body.String())
	}

	firstID := decodeData(t, first)["id"]
	secondID := decodeData(t, second)["id"]
	if firstID != secondID {
		t.Errorf("replay returned a different order: %v vs %v", firstID, secondID)
	}
	if len(env.producer.jobs) != 1 {
		t.Errorf("published jobs = %d, want 1 (replay must not enqueue)", len(env.producer.jobs))
	}
	if len(env.repo.orders) != 1 {
		t.Errorf("orders persisted = %d, want 1", len(env.repo.orders))
	}
}

func TestCreateOrderPublishFailureKeepsOrder(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	env.producer.err = fmt.Errorf("stream unavailable")

	w := doJSON(t, env.engine, http.MethodPost, "/v1/orders", map[string]any{
		"user_id":   "user-7",
		"theme":     "Тема",
		"pages":     5,
		"work_type": "report",
		"model":     "test",
	}, nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500; body=%s", w.Code, w.Body.String())
	}
	// 订单行保留，管理端可重投
	if len(env.repo.orders) != 1 {
		t.Errorf("orders persisted = %d, want 1", len(env.repo.orders))
	}
}

func TestGetOrder(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	order := entity.NewOrder("user-1", entity.WorkTypeCoursework, "Тема", 10, "test", 99)
	env.repo.put(order)

	w := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeData(t, w)
	if data["id"] != order.ID {
		t.Errorf("id = %v, want %s", data["id"], order.ID)
	}

	missing := doJSON(t, env.engine, http.MethodGet, "/v1/orders/nope", nil, nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing order: status = %d, want 404", missing.Code)
	}
}

func TestGetProgressFastPath(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	env.progress.snapshot = &redisstore.ProgressSnapshot{
		OrderID:   "ord-1",
		Progress:  42,
		Stage:     "chapters",
		Message:   "Пишем главу 2",
		UpdatedAt: time.Now(),
	}

	w := doJSON(t, env.engine, http.MethodGet, "/v1/orders/ord-1/progress", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeData(t, w)
	if data["progress"] != float64(42) {
		t.Errorf("progress = %v, want 42", data["progress"])
	}
	if data["status"] != "generating" {
		t.Errorf("status = %v, want generating", data["status"])
	}
}

func TestGetProgressStageMapping(t *testing.T) {
	tests := []struct {
		stage string
		want  string
	}{
		{"", "created"},
		{"plan", "generating"},
		{"done", "completed"},
		{"failed", "failed"},
	}
	for _, tt := range tests {
		if got := statusForStage(tt.stage); string(got) != tt.want {
			t.Errorf("statusForStage(%q) = %s, want %s", tt.stage, got, tt.want)
		}
	}
}

func TestGetProgressFallsBackToOrderRow(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	env.progress.err = fmt.Errorf("redis down")

	order := entity.NewOrder("user-1", entity.WorkTypeCoursework, "Тема", 10, "test", 99)
	order.Status = entity.OrderStatusGenerating
	order.Progress = 55
	order.Stage = "subsections"
	env.repo.put(order)

	w := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID+"/progress", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeData(t, w)
	if data["progress"] != float64(55) {
		t.Errorf("progress = %v, want 55", data["progress"])
	}
	if data["status"] != "generating" {
		t.Errorf("status = %v, want generating", data["status"])
	}

	missing := doJSON(t, env.engine, http.MethodGet, "/v1/orders/nope/progress", nil, nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing order: status = %d, want 404", missing.Code)
	}
}

func TestDownloadArtifact(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	dir := t.TempDir()

	texPath := filepath.Join(dir, "work.tex")
	if err := os.WriteFile(texPath, []byte("\\documentclass{article}"), 0o644); err != nil {
		t.Fatal(err)
	}

	order := entity.NewOrder("user-1", entity.WorkTypeCoursework, "Тема", 10, "test", 99)
	order.Status = entity.OrderStatusCompleted
	order.TexPath = texPath
	order.PDFPath = filepath.Join(dir, "missing.pdf")
	env.repo.put(order)

	// 完成订单 + 文件在盘上
	w := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID+"/tex", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tex download: status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "documentclass") {
		t.Errorf("tex body not served: %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "work.tex") {
		t.Errorf("Content-Disposition = %q, want filename work.tex", cd)
	}

	// 完成订单但文件已被清理
	gone := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID+"/pdf", nil, nil)
	if gone.Code != http.StatusGone {
		t.Errorf("missing file: status = %d, want 410", gone.Code)
	}

	// 路径未记录
	noDocx := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID+"/docx", nil, nil)
	if noDocx.Code != http.StatusNotFound {
		t.Errorf("absent artifact: status = %d, want 404", noDocx.Code)
	}
}

func TestDownloadArtifactBeforeCompletion(t *testing.T) {
	env := newOrderTestEnv(testConfig())

	order := entity.NewOrder("user-1", entity.WorkTypeCoursework, "Тема", 10, "test", 99)
	order.Status = entity.OrderStatusGenerating
	order.TexPath = "/tmp/should-not-be-served.tex"
	env.repo.put(order)

	w := doJSON(t, env.engine, http.MethodGet, "/v1/orders/"+order.ID+"/tex", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("incomplete order: status = %d, want 404; body=%s", w.Code, w.Body.String())
	}
}

func TestListUserOrders(t *testing.T) {
	env := newOrderTestEnv(testConfig())
	for i := 0; i < 3; i++ {
		o := entity.NewOrder("user-9", entity.WorkTypeReport, fmt.Sprintf("Тема %d", i), 5, "test", 99)
		env.repo.put(o)
	}
	env.repo.put(entity.NewOrder("other", entity.WorkTypeReport, "Чужая", 5, "test", 99))

	w := doJSON(t, env.engine, http.MethodGet, "/v1/users/user-9/orders?page=1&page_size=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(envelope.Data) != 3 {
		t.Errorf("items = %d, want 3", len(envelope.Data))
	}
	if envelope.Meta.Total != 3 {
		t.Errorf("total = %d, want 3", envelope.Meta.Total)
	}
}

func TestResolveModel(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name    string
		model   string
		want    string
		wantErr bool
	}{
		{"explicit model", "deepseek/deepseek-chat", "deepseek/deepseek-chat", false},
		{"test passthrough", "TEST", "test", false},
		{"empty falls back to provider default", "", "google/gemini-flash-lite", false},
		{"overlong rejected", strings.Repeat("m", 65), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveModel(cfg, tt.model)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("model = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("no provider configured", func(t *testing.T) {
		if _, err := resolveModel(&config.Config{}, ""); err == nil {
			t.Error("expected error for unconfigured provider")
		}
	})
}
