package broker

import (
	"sync"

	"relaybus-core/internal/match"
)

type interestKey struct {
	channel string
	mode    match.Mode
}

// interestSet 引用计数的订阅集合
// 总线对每条本地订阅都会通知引擎，同一 (channel, mode) 可能被订阅多次
type interestSet struct {
	mu       sync.RWMutex
	counts   map[interestKey]int
	patterns map[interestKey]*match.Pattern
}

func newInterestSet() *interestSet {
	return &interestSet{
		counts:   make(map[interestKey]int),
		patterns: make(map[interestKey]*match.Pattern),
	}
}

// add 增加引用，first 表示该 (channel, mode) 首次出现
func (s *interestSet) add(channel string, mode match.Mode) (p *match.Pattern, first bool, err error) {
	mode, err = mode.Normalize()
	if err != nil {
		return nil, false, err
	}
	key := interestKey{channel: channel, mode: mode}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patterns[key]; ok {
		s.counts[key]++
		return p, false, nil
	}
	p, err = match.Compile(channel, mode)
	if err != nil {
		return nil, false, err
	}
	s.patterns[key] = p
	s.counts[key] = 1
	return p, true, nil
}

// remove 减少引用，last 表示引用归零
func (s *interestSet) remove(channel string, mode match.Mode) (p *match.Pattern, last, ok bool) {
	mode, err := mode.Normalize()
	if err != nil {
		return nil, false, false
	}
	key := interestKey{channel: channel, mode: mode}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok = s.patterns[key]
	if !ok {
		return nil, false, false
	}
	s.counts[key]--
	if s.counts[key] > 0 {
		return p, false, true
	}
	delete(s.counts, key)
	delete(s.patterns, key)
	return p, true, true
}

// reset 清空全部引用
func (s *interestSet) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[interestKey]int)
	s.patterns = make(map[interestKey]*match.Pattern)
}

// matches 是否有任一订阅命中 channel
func (s *interestSet) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patterns {
		if p.Match(channel) {
			return true
		}
	}
	return false
}

// count 某 (channel, mode) 的引用数
func (s *interestSet) count(channel string, mode match.Mode) int {
	mode, err := mode.Normalize()
	if err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[interestKey{channel: channel, mode: mode}]
}

func (s *interestSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

func (s *interestSet) snapshot() []*match.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*match.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out
}
