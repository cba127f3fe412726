package match

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	coreerrors "relaybus-core/internal/core/errors"
)

// DefaultCacheSize 默认缓存条目数
const DefaultCacheSize = 1024

// Cache 编译结果缓存（LRU）
// 同一模式的并发未命中只编译一次；编译失败不缓存
type Cache struct {
	entries *lru.Cache[string, *Pattern]
	sf      singleflight.Group
}

// NewCache 创建缓存，size <= 0 时使用 DefaultCacheSize
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *Pattern](size)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "create pattern cache")
	}
	return &Cache{entries: entries}, nil
}

// Compile 从缓存获取或编译模式
func (c *Cache) Compile(pattern string, mode Mode) (*Pattern, error) {
	m, err := mode.Normalize()
	if err != nil {
		return nil, err
	}
	key := string(m) + "\x00" + pattern
	if p, ok := c.entries.Get(key); ok {
		return p, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		p, err := Compile(pattern, m)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pattern), nil
}

// Len 当前缓存条目数
func (c *Cache) Len() int {
	return c.entries.Len()
}
