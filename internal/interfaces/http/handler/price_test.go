package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
)

func newPriceEngine(cfg *config.Config) *gin.Engine {
	pricing := service.NewPriceCalculator(cfg.Billing.BasePrice, cfg.Billing.ModelMultipliers)
	h := NewPriceHandler(pricing, cfg)
	engine := gin.New()
	engine.GET("/v1/price", h.GetPrice)
	return engine
}

func TestGetPrice(t *testing.T) {
	engine := newPriceEngine(testConfig())

	tests := []struct {
		name      string
		query     string
		wantPrice float64
	}{
		{"flash lite", "?model=google/gemini-flash-lite", 99},
		{"deepseek", "?model=deepseek/deepseek-chat-v3-0324", 149},
		{"gpt-4o-mini", "?model=openai/gpt-4o-mini&work_type=coursework", 199},
		{"default model from provider", "", 99},
		{"unknown model gets base multiplier", "?model=mistral-large", 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodGet, "/v1/price"+tt.query, nil, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
			}
			data := decodeData(t, w)
			if data["price"] != tt.wantPrice {
				t.Errorf("price = %v, want %v", data["price"], tt.wantPrice)
			}
			if data["currency"] != "XTR" {
				t.Errorf("currency = %v, want XTR", data["currency"])
			}
		})
	}
}

func TestGetPriceUnknownWorkType(t *testing.T) {
	engine := newPriceEngine(testConfig())

	w := doJSON(t, engine, http.MethodGet, "/v1/price?work_type=poem", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body=%s", w.Code, w.Body.String())
	}
}

func TestGetSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Samples.Themes = []string{
		"Анализ алгоритмов сортировки",
		"Машинное обучение в медицине",
	}

	h := NewSamplesHandler(cfg)
	engine := gin.New()
	engine.GET("/v1/samples", h.GetSamples)

	w := doJSON(t, engine, http.MethodGet, "/v1/samples", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	data := decodeData(t, w)
	themes, ok := data["themes"].([]any)
	if !ok || len(themes) != 2 {
		t.Errorf("themes = %v, want 2 entries", data["themes"])
	}
	workTypes, ok := data["work_types"].([]any)
	if !ok || len(workTypes) != 6 {
		t.Fatalf("work_types = %v, want 6 entries", data["work_types"])
	}
	first, ok := workTypes[0].(map[string]any)
	if !ok || first["value"] == "" || first["label"] == "" {
		t.Errorf("work type option malformed: %v", workTypes[0])
	}
}
