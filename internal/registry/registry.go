package registry

import (
	"iter"
	"slices"
	"sync"
)

// Registry 订阅注册表
// 读操作共享读锁；写操作互斥，订阅在插入前已完整构造
type Registry struct {
	mu sync.RWMutex

	byKey    map[Key]*Subscription
	exact    map[string]map[Key]*Subscription // 字面频道 -> 订阅
	patterns map[Key]*Subscription
	owners   map[string]map[string]struct{} // owner -> channel
}

// New 创建空注册表
func New() *Registry {
	return &Registry{
		byKey:    make(map[Key]*Subscription),
		exact:    make(map[string]map[Key]*Subscription),
		patterns: make(map[Key]*Subscription),
		owners:   make(map[string]map[string]struct{}),
	}
}

// Put 插入订阅，同键已有订阅时原子替换并返回旧订阅
func (r *Registry) Put(sub *Subscription) (old *Subscription, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sub.Key()
	if prev, ok := r.byKey[key]; ok {
		r.removeLocked(prev)
		old, replaced = prev, true
	}
	r.insertLocked(sub)
	return old, replaced
}

// Remove 删除订阅，不存在时返回 false
func (r *Registry) Remove(owner, channel string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byKey[Key{Owner: owner, Channel: channel}]
	if !ok {
		return nil, false
	}
	r.removeLocked(sub)
	return sub, true
}

// RemoveAllForOwner 删除 owner 的全部订阅
func (r *Registry) RemoveAllForOwner(owner string) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := r.owners[owner]
	if len(channels) == 0 {
		return nil
	}
	removed := make([]*Subscription, 0, len(channels))
	for channel := range channels {
		if sub, ok := r.byKey[Key{Owner: owner, Channel: channel}]; ok {
			removed = append(removed, sub)
		}
	}
	for _, sub := range removed {
		r.removeLocked(sub)
	}
	sortByCreated(removed)
	return removed
}

// Match 返回命中 channel 的订阅序列
// 命中结果在读锁内收集，释放锁后再逐个交给调用方，回调中可以再次修改注册表
func (r *Registry) Match(channel string) iter.Seq[*Subscription] {
	return func(yield func(*Subscription) bool) {
		for _, sub := range r.collect(channel) {
			if !yield(sub) {
				return
			}
		}
	}
}

func (r *Registry) collect(channel string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exact := r.exact[channel]
	matched := make([]*Subscription, 0, len(exact))
	for _, sub := range exact {
		matched = append(matched, sub)
	}
	for _, sub := range r.patterns {
		if sub.Matches(channel) {
			matched = append(matched, sub)
		}
	}
	return matched
}

// Get 按键查找
func (r *Registry) Get(owner, channel string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byKey[Key{Owner: owner, Channel: channel}]
	return sub, ok
}

// Snapshot 全部订阅，按创建时间排序
func (r *Registry) Snapshot() []*Subscription {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.byKey))
	for _, sub := range r.byKey {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	sortByCreated(subs)
	return subs
}

// Len 订阅总数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// OwnerLen owner 持有的订阅数
func (r *Registry) OwnerLen(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners[owner])
}

func (r *Registry) insertLocked(sub *Subscription) {
	key := sub.Key()
	r.byKey[key] = sub

	if lit, ok := sub.Pattern.Literal(); ok {
		bucket := r.exact[lit]
		if bucket == nil {
			bucket = make(map[Key]*Subscription)
			r.exact[lit] = bucket
		}
		bucket[key] = sub
	} else {
		r.patterns[key] = sub
	}

	channels := r.owners[sub.Owner]
	if channels == nil {
		channels = make(map[string]struct{})
		r.owners[sub.Owner] = channels
	}
	channels[sub.Channel] = struct{}{}
}

func (r *Registry) removeLocked(sub *Subscription) {
	key := sub.Key()
	delete(r.byKey, key)

	if lit, ok := sub.Pattern.Literal(); ok {
		if bucket := r.exact[lit]; bucket != nil {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(r.exact, lit)
			}
		}
	} else {
		delete(r.patterns, key)
	}

	if channels := r.owners[sub.Owner]; channels != nil {
		delete(channels, sub.Channel)
		if len(channels) == 0 {
			delete(r.owners, sub.Owner)
		}
	}
}

func sortByCreated(subs []*Subscription) {
	slices.SortStableFunc(subs, func(a, b *Subscription) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
