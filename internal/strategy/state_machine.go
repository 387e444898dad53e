package strategy

import (
	"sync"

	"go.uber.org/zap"
)

// StateMachine 记录每个标的的 COLD/WARM 状态。
// 状态只会从 COLD 转到 WARM，不会回退。
type StateMachine struct {
	mu     sync.RWMutex
	states map[string]SymbolState
	window int
	logger *zap.Logger
}

// NewStateMachine window 为转入 WARM 所需的样本数
func NewStateMachine(window int, logger *zap.Logger) *StateMachine {
	return &StateMachine{
		states: make(map[string]SymbolState),
		window: window,
		logger: logger,
	}
}

// Observe 根据标的当前窗口长度推进状态，返回推进后的状态
func (sm *StateMachine) Observe(symbol string, length int) SymbolState {
	sm.mu.RLock()
	current, ok := sm.states[symbol]
	sm.mu.RUnlock()
	if ok && current == StateWarm {
		return StateWarm
	}

	next := StateCold
	if length >= sm.window {
		next = StateWarm
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.states[symbol] == StateWarm {
		return StateWarm
	}
	sm.states[symbol] = next
	if next == StateWarm {
		sm.logger.Info("!!! State Transition !!!",
			zap.String("Symbol", symbol),
			zap.String("From", string(StateCold)),
			zap.String("To", string(StateWarm)),
			zap.Int("Samples", length),
		)
	}
	return next
}

// State 查询标的状态，从未出现过的标的视为 COLD
func (sm *StateMachine) State(symbol string) SymbolState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if s, ok := sm.states[symbol]; ok {
		return s
	}
	return StateCold
}

// Warm 返回已经预热完成的标的数量
func (sm *StateMachine) Warm() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	n := 0
	for _, s := range sm.states {
		if s == StateWarm {
			n++
		}
	}
	return n
}
