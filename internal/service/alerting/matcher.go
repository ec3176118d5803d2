package alerting

import (
	"context"
	"fmt"

	"luxuryestates/internal/model"
)

// AlertStore 订阅的持久化
type AlertStore interface {
	Create(ctx context.Context, alert *model.Alert) error
	FindByCategory(ctx context.Context, category model.Category) ([]model.Alert, error)
}

// Matcher 只读，不做模糊匹配也没有分类层级
type Matcher struct {
	alerts AlertStore
}

func NewMatcher(alerts AlertStore) *Matcher {
	return &Matcher{alerts: alerts}
}

// MatchAlerts 返回 property_type 与 category 完全相等的订阅；未知分类返回空
func (m *Matcher) MatchAlerts(ctx context.Context, category model.Category) ([]model.Alert, error) {
	if !category.Valid() {
		return []model.Alert{}, nil
	}

	alerts, err := m.alerts.FindByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("match alerts for %s: %w", category, err)
	}

	// 存储层按 = 查询，这里再按值过滤一次，保证不会跨分类误发
	matched := make([]model.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.PropertyType == category {
			matched = append(matched, a)
		}
	}
	return matched, nil
}
