package models

import "time"

// StockSnapshotRow is one product line of the daily stock report.
type StockSnapshotRow struct {
	Date         time.Time
	ProductID    ID
	ProductName  string
	CurrentStock int
	Price        float64
	Value        float64
	LowStock     bool
}

// AuditEntry records a mutation submitted through the dashboard.
type AuditEntry struct {
	Action     string            `bson:"action" json:"action"`
	Resource   string            `bson:"resource" json:"resource"`
	ResourceID string            `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	SessionID  string            `bson:"session_id" json:"session_id"`
	Details    map[string]string `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt  time.Time         `bson:"created_at" json:"created_at"`
}
