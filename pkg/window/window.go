package window

import (
	"errors"
	"fmt"
)

// ErrTooManyKeys 表示 Store 中的 key 数量已达到上限
var ErrTooManyKeys = errors.New("window store key limit reached")

// Window 固定容量的 FIFO 环形缓冲区，写满后覆盖最旧的元素
type Window[T any] struct {
	buf   []T
	start int // 最旧元素的下标
	size  int
}

// New 创建容量为 capacity 的窗口 (capacity < 1 时按 1 处理)
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push 追加一个元素，超出容量时淘汰最旧的元素
func (w *Window[T]) Push(v T) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

func (w *Window[T]) Len() int { return w.size }

func (w *Window[T]) Cap() int { return len(w.buf) }

// Full 窗口是否已写满
func (w *Window[T]) Full() bool { return w.size == len(w.buf) }

// Values 按插入顺序返回副本 (最旧在前)
func (w *Window[T]) Values() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// NewestFirst 返回副本，最新的元素在前
func (w *Window[T]) NewestFirst() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+w.size-1-i)%len(w.buf)]
	}
	return out
}

// Last 返回最新的元素
func (w *Window[T]) Last() (T, bool) {
	var zero T
	if w.size == 0 {
		return zero, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)], true
}

// Store 按 key 懒创建窗口，key 数量受 maxKeys 限制 (0 表示不限制)。
// Store 不是并发安全的，由唯一的消费 goroutine 持有。
type Store[K comparable, T any] struct {
	capacity int
	maxKeys  int
	windows  map[K]*Window[T]
	order    []K // key 首次出现的顺序
}

// NewStore 创建 keyed 窗口存储
func NewStore[K comparable, T any](capacity, maxKeys int) *Store[K, T] {
	return &Store[K, T]{
		capacity: capacity,
		maxKeys:  maxKeys,
		windows:  make(map[K]*Window[T]),
	}
}

// Push 向 key 对应的窗口追加元素，新 key 超出上限时返回 ErrTooManyKeys
func (s *Store[K, T]) Push(key K, v T) error {
	w, ok := s.windows[key]
	if !ok {
		if s.maxKeys > 0 && len(s.windows) >= s.maxKeys {
			return fmt.Errorf("%w: %d keys, refusing %v", ErrTooManyKeys, len(s.windows), key)
		}
		w = New[T](s.capacity)
		s.windows[key] = w
		s.order = append(s.order, key)
	}
	w.Push(v)
	return nil
}

// Window 返回 key 对应的窗口，不存在时返回 nil
func (s *Store[K, T]) Window(key K) *Window[T] {
	return s.windows[key]
}

// Snapshot 按插入顺序返回 key 的窗口内容 (最旧在前)
func (s *Store[K, T]) Snapshot(key K) []T {
	w, ok := s.windows[key]
	if !ok {
		return nil
	}
	return w.Values()
}

// NewestFirst 返回 key 的窗口内容，最新在前
func (s *Store[K, T]) NewestFirst(key K) []T {
	w, ok := s.windows[key]
	if !ok {
		return nil
	}
	return w.NewestFirst()
}

// Keys 按首次出现顺序返回所有 key
func (s *Store[K, T]) Keys() []K {
	out := make([]K, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Store[K, T]) Len() int { return len(s.windows) }
