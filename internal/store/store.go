package store

import (
	"context"
	"errors"
)

// ErrStore 持久化列表读写失败
var ErrStore = errors.New("list store failure")

// ListStore 按 key 组织的持久化字符串列表，语义与 Redis list 一致。
// Range 的 start/stop 都是闭区间，负数表示从末尾倒数 (-1 为最后一个元素)。
type ListStore interface {
	// Append 追加到列表末尾
	Append(ctx context.Context, key, value string) error
	// AppendTrimmed 追加后只保留最新的 keep 条
	AppendTrimmed(ctx context.Context, key, value string, keep int) error
	Range(ctx context.Context, key string, start, stop int) ([]string, error)
	Close() error
}

// normalizeRange 把 redis 风格的下标转换成 [lo, hi) 切片区间，区间为空时 ok 为 false
func normalizeRange(length, start, stop int) (lo, hi int, ok bool) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if length == 0 || start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop + 1, true
}
