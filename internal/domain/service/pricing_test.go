package service

import "testing"

func TestPriceCalculatorCalculate(t *testing.T) {
	calc := NewPriceCalculator(100, map[string]float64{
		"gemini-flash-lite": 1.0,
		"deepseek-chat":     1.5,
		"gpt-4o-mini":       2.0,
	})

	tests := []struct {
		name  string
		model string
		want  int
	}{
		{"base multiplier", "google/gemini-flash-lite", 99},
		{"middle multiplier", "deepseek/deepseek-chat-v3-0324", 149},
		{"top multiplier", "openai/gpt-4o-mini", 199},
		{"substring is case insensitive", "OpenAI/GPT-4o-Mini", 199},
		{"unknown model uses default", "anthropic/claude-3", 99},
		{"test model uses default", "test", 99},
		{"empty model uses default", "", 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.Calculate(tt.model); got != tt.want {
				t.Errorf("Calculate(%q) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

func TestPriceCalculatorPrefersLongestMatch(t *testing.T) {
	calc := NewPriceCalculator(100, map[string]float64{
		"gpt":         1.2,
		"gpt-4o-mini": 2.0,
	})

	if got := calc.Calculate("openai/gpt-4o-mini"); got != 199 {
		t.Errorf("Calculate = %d, want 199 (longest key must win)", got)
	}
	if got := calc.Calculate("openai/gpt-3.5"); got != 119 {
		t.Errorf("Calculate = %d, want 119", got)
	}
}

func TestPriceCalculatorDefaults(t *testing.T) {
	calc := NewPriceCalculator(0, nil)
	if calc.BasePrice() != 100 {
		t.Errorf("BasePrice = %d, want fallback 100", calc.BasePrice())
	}
	if got := calc.Calculate("any"); got != 99 {
		t.Errorf("Calculate = %d, want 99", got)
	}
}
