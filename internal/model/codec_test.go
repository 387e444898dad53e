package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePriceTick(t *testing.T) {
	tick, err := DecodePriceTick([]byte(`{"s":"AAPL","t":"2024-05-01T12:00:00.123456","o":101,"h":102.01,"l":99.99,"c":101,"v":640}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", tick.Symbol)
	assert.Equal(t, 101.0, tick.Close)
	assert.Equal(t, int64(640), tick.Volume)

	ts, err := ParseTimestamp(tick.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
}

func TestDecodePriceTickRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"s": "AAPL", `,
		"python quotes":  `{'s': 'AAPL', 'c': 100}`,
		"missing symbol": `{"c":100}`,
		"zero close":     `{"s":"AAPL","c":0}`,
		"negative vol":   `{"s":"AAPL","c":10,"v":-1}`,
		"bad timestamp":  `{"s":"AAPL","c":10,"t":"yesterday"}`,
		"wrong type":     `{"s":"AAPL","c":"ten"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePriceTick([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}

func TestDecodeTradeSignal(t *testing.T) {
	s, err := DecodeTradeSignal([]byte(`{"strategy":"meanrev","symbol":"MSFT","signal":"BUY","confidence":1.0}`))
	require.NoError(t, err)
	assert.Equal(t, TradeSignal{Strategy: "meanrev", Symbol: "MSFT", Action: ActionBuy, Confidence: 1}, s)

	for _, payload := range []string{
		`{"symbol":"MSFT","signal":"SHORT","confidence":1}`,
		`{"symbol":"MSFT","signal":"BUY","confidence":1.5}`,
		`{"signal":"BUY","confidence":1}`,
	} {
		_, err := DecodeTradeSignal([]byte(payload))
		assert.ErrorIs(t, err, ErrDecode, payload)
	}
}

func TestDecodeAggregatedSignal(t *testing.T) {
	s, err := DecodeAggregatedSignal([]byte(`{"symbol":"TSLA","signal":"SELL","confidence":0.6}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSell, s.Signal().Action)
	assert.Equal(t, "TSLA", s.Signal().Symbol)
}

func TestPortfolioStateRoundTripKeys(t *testing.T) {
	entry := 100.0
	state := PortfolioState{Cash: 99900, Position: 1, EntryPrice: &entry}
	raw, err := json.Marshal(state)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"cash", "position", "entry_price", "pnl", "drawdown", "history"} {
		assert.Contains(t, fields, key)
	}

	flat, err := json.Marshal(PortfolioState{Cash: 1})
	require.NoError(t, err)
	assert.Contains(t, string(flat), `"entry_price":null`)
}

func TestDecodePortfolioStateRejects(t *testing.T) {
	_, err := DecodePortfolioState([]byte(`{"cash":1,"position":-1}`))
	assert.ErrorIs(t, err, ErrDecode)
	_, err = DecodePortfolioState([]byte(`{"cash":1,"position":0,"drawdown":5}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeTradeRecord(t *testing.T) {
	r, err := DecodeTradeRecord([]byte(`{"id":"x","symbol":"AAPL","signal":"BUY","time":"2024-05-01T12:00:00Z","price":100}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.Price)

	_, err = DecodeTradeRecord([]byte(`{"symbol":"AAPL","signal":"HOLD","price":100}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeTradeRecordTime(t *testing.T) {
	tests := map[string]struct {
		time string
		want time.Time
	}{
		"no zone": {`"2024-05-01T12:00:00.123456"`, time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)},
		"space":   {`"2024-05-01 12:00:00"`, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		"offset":  {`"2024-05-01T14:00:00+02:00"`, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		"empty":   {`""`, time.Time{}},
		"null":    {`null`, time.Time{}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := DecodeTradeRecord([]byte(`{"id":"x","symbol":"AAPL","signal":"SELL","time":` + tc.time + `,"price":100}`))
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(r.Time), "got %v", r.Time)
			assert.Equal(t, ActionSell, r.Action)
			assert.Equal(t, "x", r.ID)
		})
	}

	_, err := DecodeTradeRecord([]byte(`{"symbol":"AAPL","signal":"BUY","time":"yesterday","price":100}`))
	assert.ErrorIs(t, err, ErrDecode)

	// 持仓历史里的记录走同样的解析
	state, err := DecodePortfolioState([]byte(`{"cash":1,"position":1,"history":[{"id":"x","symbol":"AAPL","signal":"BUY","time":"2024-05-01T12:00:00.5","price":1}]}`))
	require.NoError(t, err)
	require.Len(t, state.History, 1)
	assert.Equal(t, 500*time.Millisecond, state.History[0].Time.Sub(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPortfolioStateClone(t *testing.T) {
	entry := 10.0
	s := PortfolioState{EntryPrice: &entry, History: []TradeRecord{{Symbol: "A"}}}
	c := s.Clone()
	*c.EntryPrice = 20
	c.History[0].Symbol = "B"
	assert.Equal(t, 10.0, *s.EntryPrice)
	assert.Equal(t, "A", s.History[0].Symbol)
}
