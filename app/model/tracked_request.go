package model

import (
	"time"
)

// RequestStatus 请求在 Overseerr 侧的生命周期状态
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusDeclined   RequestStatus = "declined"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusAvailable  RequestStatus = "available"
)

// TrackedRequest 状态监控跟踪的请求，状态变化时通知发起聊天
type TrackedRequest struct {
	ID         uint          `gorm:"primaryKey"`
	RequestID  int           `gorm:"uniqueIndex;not null"`
	ChatID     int64         `gorm:"not null;index"`
	Title      string
	LastStatus RequestStatus `gorm:"default:'pending';index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	NotifiedAt *time.Time
}

// TableName 指定表名
func (TrackedRequest) TableName() string {
	return "tracked_requests"
}
