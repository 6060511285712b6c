package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingViewAlert is the payload posted by a TradingView webhook.
type TradingViewAlert struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Action   string  `json:"action"`
	Strategy string  `json:"strategy,omitempty"`
	Message  string  `json:"message,omitempty"`
}

func (a TradingViewAlert) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("alert symbol is required")
	}
	if a.Price < 0 {
		return fmt.Errorf("alert price must be non-negative, got %v", a.Price)
	}
	switch strings.ToLower(a.Action) {
	case "buy", "sell", "alert":
	default:
		return fmt.Errorf("alert action must be buy, sell or alert, got %q", a.Action)
	}
	return nil
}

type PlanStatus string

const (
	PlanPending   PlanStatus = "PENDING"
	PlanExecuting PlanStatus = "EXECUTING"
	PlanExecuted  PlanStatus = "EXECUTED"
	PlanRejected  PlanStatus = "REJECTED"
	PlanFailed    PlanStatus = "FAILED"
)

type TradingPlan struct {
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
}

// AlertPlan is an analysed alert waiting for operator confirmation.
type AlertPlan struct {
	ID             string           `json:"id"`
	Alert          TradingViewAlert `json:"alert"`
	Asset          string           `json:"asset"`
	Summary        string           `json:"analysis_summary"`
	Decision       Decision         `json:"decision"`
	Confidence     float64          `json:"confidence_score"`
	Plan           TradingPlan      `json:"trading_plan"`
	RiskAssessment string           `json:"risk_assessment"`
	QuoteBalance   decimal.Decimal  `json:"quote_balance"`
	Status         PlanStatus       `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	Result         *StepResult      `json:"result,omitempty"`
}
