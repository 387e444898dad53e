package executor

import (
	"context"
	"errors"

	"quant-pipeline/internal/model"
)

// 业务规则拒绝。被拒绝的信号不会改变账户状态
var (
	ErrRejected         = errors.New("signal rejected")
	ErrNoPrice          = errors.New("no price observed for symbol")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no open position")
	ErrHold             = errors.New("hold signal")
)

// Execution 一次被接受的状态转换。
// Realized 为 true 时 Return 是本次已实现盈亏 / 开仓价
type Execution struct {
	Record   model.TradeRecord
	State    model.PortfolioState
	Return   float64
	Realized bool
}

// Executor 是交易执行器的通用接口
type Executor interface {
	// 接收信号并尝试成交，拒绝时返回 ErrRejected 包装的错误
	ExecuteSignal(ctx context.Context, signal model.TradeSignal) (Execution, error)

	// 记录标的的最新价格
	UpdatePrice(tick model.PriceTick)

	// 返回当前账户状态的快照
	State() model.PortfolioState
}

// RejectReason 把拒绝错误转换成指标标签
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoPrice):
		return "no_price"
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrNoPosition):
		return "no_position"
	case errors.Is(err, ErrHold):
		return "hold"
	default:
		return "other"
	}
}
