package mq

import (
	"time"

	"luxuryestates/internal/model"
)

type FanoutDestination struct {
	AlertID int64  `json:"alert_id"`
	Email   string `json:"email"`
}

// NotificationFanoutPayload notification.fanout 事件。收件人和房源批次在入队时就已确定，
// worker 不再重新查询，重投时结果一致
type NotificationFanoutPayload struct {
	JobID        string                   `json:"job_id"`
	PropertyID   int64                    `json:"property_id"`
	Category     string                   `json:"category"`
	Destinations []FanoutDestination      `json:"destinations"`
	Properties   []model.PropertySnapshot `json:"properties"`
	CreatedAt    time.Time                `json:"created_at"`
	TraceID      string                   `json:"trace_id,omitempty"`
}
