package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditStage marks whether a record describes a proposal or an execution.
type AuditStage string

const (
	AuditStageProposed AuditStage = "proposed"
	AuditStageExecuted AuditStage = "executed"
)

// AuditRecord single entry written to the audit sink.
type AuditRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"ts"`
	Kind      string          `json:"kind"`
	Symbols   []string        `json:"symbols"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Stage     AuditStage      `json:"stage"`
	Success   bool            `json:"success"`
}

// NewAuditRecord builds a record for the given action.
func NewAuditRecord(id string, ts time.Time, a Action, stage AuditStage, success bool) AuditRecord {
	return AuditRecord{
		ID:        id,
		Timestamp: ts,
		Kind:      a.Kind().String(),
		Symbols:   a.Symbols(),
		Amount:    a.Total(),
		Reason:    a.Why(),
		Stage:     stage,
		Success:   success,
	}
}
