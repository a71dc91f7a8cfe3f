package service

import "strings"

// PriceCalculator 按模型计算订单价格（单位：Telegram Stars）。
// 系数表的键是模型名子串，对订单模型名做不区分大小写的包含匹配，
// 未命中任何子串时按 1.0 计。
type PriceCalculator struct {
	basePrice   int
	multipliers map[string]float64
}

// NewPriceCalculator 创建计价器。multipliers 可为 nil。
func NewPriceCalculator(basePrice int, multipliers map[string]float64) *PriceCalculator {
	if basePrice <= 0 {
		basePrice = 100
	}
	return &PriceCalculator{
		basePrice:   basePrice,
		multipliers: multipliers,
	}
}

// Calculate 返回指定模型的价格。
// 价格恒定为 int(base*multiplier)-1，与页数无关：
// 让标价看起来不那么“整”，同时保持同模型同价。
// 多个子串同时命中时取最长的（更具体的）键，保证结果确定。
func (c *PriceCalculator) Calculate(model string) int {
	multiplier := 1.0
	matched := ""
	lower := strings.ToLower(strings.TrimSpace(model))
	for key, m := range c.multipliers {
		if key == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(key)) && len(key) > len(matched) {
			matched = key
			multiplier = m
		}
	}
	price := int(float64(c.basePrice)*multiplier) - 1
	if price < 0 {
		price = 0
	}
	return price
}

// BasePrice 返回基础价格。
func (c *PriceCalculator) BasePrice() int {
	return c.basePrice
}
