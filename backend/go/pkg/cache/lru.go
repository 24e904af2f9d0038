// Package cache 提供一个泛型、线程安全的 LRU 缓存。
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Config 配置 LRU 的淘汰策略。Capacity 与 MaxWeight 至少设置一个。
type Config struct {
	// Capacity 是最多保存的条目数，0 表示不限制。
	Capacity int
	// MaxWeight 是所有条目权重之和的上限，0 表示不限制。
	MaxWeight int
	// TTL 是条目的存活时间，0 表示永不过期。
	TTL time.Duration
}

type item[K comparable, V any] struct {
	key     K
	value   V
	weight  int
	expires time.Time
}

// LRU 按最近使用顺序淘汰条目。
type LRU[K comparable, V any] struct {
	cfg    Config
	now    func() time.Time
	order  *list.List
	items  map[K]*list.Element
	weight int
	mu     sync.Mutex

	hits, misses int
}

// New 创建一个 LRU。
func New[K comparable, V any](cfg Config) (*LRU[K, V], error) {
	if cfg.Capacity < 0 || cfg.MaxWeight < 0 {
		return nil, fmt.Errorf("cache: capacity and max weight must not be negative")
	}
	if cfg.Capacity == 0 && cfg.MaxWeight == 0 {
		return nil, fmt.Errorf("cache: capacity or max weight must be set")
	}
	return &LRU[K, V]{
		cfg:   cfg,
		now:   time.Now,
		order: list.New(),
		items: make(map[K]*list.Element),
	}, nil
}

// Get 返回 key 对应的值并将其标记为最近使用。过期条目在这里被移除。
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	it := el.Value.(*item[K, V])
	if c.cfg.TTL > 0 && c.now().After(it.expires) {
		c.remove(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return it.value, true
}

// Put 写入或更新一个条目。按条目数淘汰时 weight 传 1 即可。
// 单个条目的权重超过 MaxWeight 时不会被缓存。
func (c *LRU[K, V]) Put(key K, value V, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.MaxWeight > 0 && weight > c.cfg.MaxWeight {
		if el, ok := c.items[key]; ok {
			c.remove(el)
		}
		return
	}

	var expires time.Time
	if c.cfg.TTL > 0 {
		expires = c.now().Add(c.cfg.TTL)
	}
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item[K, V])
		c.weight += weight - it.weight
		it.value, it.weight, it.expires = value, weight, expires
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(&item[K, V]{key: key, value: value, weight: weight, expires: expires})
		c.weight += weight
	}

	// 一个大条目可能挤掉多个旧条目。
	for c.overLimit() {
		c.remove(c.order.Back())
	}
}

// Purge 清空缓存。
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element)
	c.weight = 0
}

// Len 返回当前条目数。
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Weight 返回当前条目的权重之和。
func (c *LRU[K, V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Stats 返回命中与未命中的次数。
func (c *LRU[K, V]) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU[K, V]) overLimit() bool {
	if c.cfg.Capacity > 0 && c.order.Len() > c.cfg.Capacity {
		return true
	}
	return c.cfg.MaxWeight > 0 && c.weight > c.cfg.MaxWeight
}

// remove 假设调用方已持有锁。
func (c *LRU[K, V]) remove(el *list.Element) {
	it := c.order.Remove(el).(*item[K, V])
	delete(c.items, it.key)
	c.weight -= it.weight
}
