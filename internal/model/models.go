package model

import (
	"fmt"
	"time"
)

// Action 定义了信号类型
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// PriceTick 单个标的的一条 OHLCV 行情，字段名与行情源保持一致
type PriceTick struct {
	Symbol    string  `json:"s"`
	Timestamp string  `json:"t"` // ISO-8601
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// TradeSignal 策略层发出的交易信号
type TradeSignal struct {
	Strategy   string  `json:"strategy"`
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

func (s TradeSignal) String() string {
	return fmt.Sprintf("SIGNAL [%s | %s] %s confidence=%.2f", s.Strategy, s.Symbol, s.Action, s.Confidence)
}

// AggregatedSignal 经过上游聚合后交给执行器的信号，结构与 TradeSignal 相同
type AggregatedSignal TradeSignal

// Signal 转换为 TradeSignal
func (s AggregatedSignal) Signal() TradeSignal {
	return TradeSignal(s)
}

// TradeRecord 一次成交记录 (只追加)
type TradeRecord struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Action Action    `json:"signal"`
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
}

// PortfolioState 执行器对外发布的完整账户状态
type PortfolioState struct {
	Cash        float64       `json:"cash"`
	Position    int           `json:"position"`
	EntryPrice  *float64      `json:"entry_price"` // 空仓时为 null
	RealizedPnL float64       `json:"pnl"`
	MaxDrawdown float64       `json:"drawdown"` // 历史最差已实现盈亏 (<= 0)
	History     []TradeRecord `json:"history"`
}

// Clone 深拷贝，调用方可以随意修改返回值
func (s PortfolioState) Clone() PortfolioState {
	out := s
	if s.EntryPrice != nil {
		v := *s.EntryPrice
		out.EntryPrice = &v
	}
	if s.History != nil {
		out.History = make([]TradeRecord, len(s.History))
		copy(out.History, s.History)
	}
	return out
}
