package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDecode 消息无法解析或未通过校验
var ErrDecode = errors.New("decode failure")

// 行情源可能使用的时间格式 (带或不带时区)
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func decode(payload []byte, v interface{ Validate() error }) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func DecodePriceTick(payload []byte) (PriceTick, error) {
	var t PriceTick
	err := decode(payload, &t)
	return t, err
}

func DecodeTradeSignal(payload []byte) (TradeSignal, error) {
	var s TradeSignal
	err := decode(payload, &s)
	return s, err
}

func DecodeAggregatedSignal(payload []byte) (AggregatedSignal, error) {
	var s AggregatedSignal
	err := decode(payload, &s)
	return s, err
}

func DecodePortfolioState(payload []byte) (PortfolioState, error) {
	var s PortfolioState
	err := decode(payload, &s)
	return s, err
}

func DecodeTradeRecord(payload []byte) (TradeRecord, error) {
	var r TradeRecord
	err := decode(payload, &r)
	return r, err
}

func (t *PriceTick) Validate() error {
	if t.Symbol == "" {
		return errors.New("tick: missing symbol")
	}
	if !finite(t.Open, t.High, t.Low, t.Close) {
		return errors.New("tick: non-finite price")
	}
	if t.Close <= 0 {
		return fmt.Errorf("tick: close must be positive, got %v", t.Close)
	}
	if t.Volume < 0 {
		return fmt.Errorf("tick: negative volume %d", t.Volume)
	}
	if t.Timestamp != "" {
		if _, err := ParseTimestamp(t.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func (s *TradeSignal) Validate() error {
	if s.Symbol == "" {
		return errors.New("signal: missing symbol")
	}
	if !s.Action.Valid() {
		return fmt.Errorf("signal: unknown action %q", s.Action)
	}
	if !finite(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal: confidence %v outside [0,1]", s.Confidence)
	}
	return nil
}

func (s *AggregatedSignal) Validate() error {
	return (*TradeSignal)(s).Validate()
}

// UnmarshalJSON 接受带或不带时区的时间，空值视为零时间
func (r *TradeRecord) UnmarshalJSON(data []byte) error {
	type plain TradeRecord
	aux := struct {
		*plain
		Time string `json:"time"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Time = time.Time{}
	if aux.Time == "" {
		return nil
	}
	ts, err := ParseTimestamp(aux.Time)
	if err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	r.Time = ts
	return nil
}

func (r *TradeRecord) Validate() error {
	if r.Symbol == "" {
		return errors.New("trade: missing symbol")
	}
	if r.Action != ActionBuy && r.Action != ActionSell {
		return fmt.Errorf("trade: unexpected action %q", r.Action)
	}
	if !finite(r.Price) || r.Price <= 0 {
		return fmt.Errorf("trade: invalid price %v", r.Price)
	}
	return nil
}

func (s *PortfolioState) Validate() error {
	if !finite(s.Cash, s.RealizedPnL, s.MaxDrawdown) {
		return errors.New("state: non-finite value")
	}
	if s.Position < 0 {
		return fmt.Errorf("state: negative position %d", s.Position)
	}
	if s.MaxDrawdown > 0 {
		return fmt.Errorf("state: positive drawdown %v", s.MaxDrawdown)
	}
	if s.EntryPrice != nil && !finite(*s.EntryPrice) {
		return errors.New("state: non-finite entry price")
	}
	return nil
}

// ParseTimestamp 解析 ISO-8601 时间，无时区时按 UTC 处理
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
