package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TradeRecord is one resolved trade as kept in the local journal.
type TradeRecord struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	IntentID       string          `gorm:"index" json:"intent_id"`
	SessionID      string          `gorm:"index" json:"session_id"`
	Kind           string          `json:"kind"`
	Quantity       int             `json:"quantity"`
	Result         string          `gorm:"index" json:"result"` // "SUCCESS" or a FailureReason
	Message        string          `json:"message"`
	ExecutionPrice decimal.Decimal `gorm:"type:text" json:"execution_price"`
	NewCash        decimal.Decimal `gorm:"type:text" json:"new_cash"`
	NewStocks      int             `json:"new_stocks"`
	Day            int             `json:"day"`
	Epoch          uint64          `json:"epoch"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ResultSuccess is TradeRecord.Result for a filled trade.
const ResultSuccess = "SUCCESS"

// NewTradeRecord flattens an outcome for the journal.
func NewTradeRecord(sessionID string, outcome TradeOutcome, day int, epoch uint64) *TradeRecord {
	intent := outcome.TradeIntent()
	rec := &TradeRecord{
		IntentID:  intent.ID,
		SessionID: sessionID,
		Kind:      string(intent.Kind),
		Quantity:  intent.Quantity,
		Day:       day,
		Epoch:     epoch,
		CreatedAt: time.Now(),
	}
	switch o := outcome.(type) {
	case *TradeSuccess:
		rec.Result = ResultSuccess
		rec.ExecutionPrice = o.ExecutionPrice
		rec.NewCash = o.NewCash
		rec.NewStocks = o.NewStocks
	case *TradeFailure:
		rec.Result = string(o.Reason)
		rec.Message = o.Message
	}
	return rec
}
