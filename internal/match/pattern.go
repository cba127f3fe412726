package match

import (
	"strings"

	coreerrors "relaybus-core/internal/core/errors"
)

const tokenSep = "."

// Pattern 编译后的模式，不可变，可在多个 goroutine 间共享
type Pattern struct {
	source  string
	mode    Mode
	literal string
	isLit   bool
	tokens  []string
	matchFn func(p *Pattern, channel string) bool
}

// Compile 按方言编译模式
func Compile(pattern string, mode Mode) (*Pattern, error) {
	m, err := mode.Normalize()
	if err != nil {
		return nil, err
	}

	p := &Pattern{source: pattern, mode: m}
	switch m {
	case ModeExact:
		p.literal, p.isLit = pattern, true
	case ModeRedis:
		if lit, ok := globLiteral(pattern); ok {
			p.literal, p.isLit = lit, true
		} else {
			p.matchFn = (*Pattern).matchGlob
		}
	case ModeNATS:
		if err := p.compileNATS(); err != nil {
			return nil, err
		}
	case ModeRabbitMQ:
		p.compileRabbitMQ()
	}
	return p, nil
}

// MustCompile 编译失败时 panic，用于常量模式
func MustCompile(pattern string, mode Mode) *Pattern {
	p, err := Compile(pattern, mode)
	if err != nil {
		panic(err)
	}
	return p
}

// Match 判断频道是否匹配
func (p *Pattern) Match(channel string) bool {
	if p.isLit {
		return channel == p.literal
	}
	return p.matchFn(p, channel)
}

// Literal 模式只匹配单一频道时返回该频道
func (p *Pattern) Literal() (string, bool) {
	return p.literal, p.isLit
}

// String 原始模式
func (p *Pattern) String() string {
	return p.source
}

// Mode 规范化后的方言
func (p *Pattern) Mode() Mode {
	return p.mode
}

func (p *Pattern) matchGlob(channel string) bool {
	return globMatch(p.source, channel)
}

// ============================================================================
// nats-wildcard
// ============================================================================

func (p *Pattern) compileNATS() error {
	tokens := strings.Split(p.source, tokenSep)
	wild := false
	for i, tok := range tokens {
		switch tok {
		case "":
			return coreerrors.Newf(coreerrors.CodeInvalidPattern, "nats pattern %q has an empty token", p.source)
		case ">":
			if i != len(tokens)-1 {
				return coreerrors.Newf(coreerrors.CodeInvalidPattern, "nats pattern %q: '>' must be the last token", p.source)
			}
			wild = true
		case "*":
			wild = true
		}
	}
	if !wild {
		p.literal, p.isLit = p.source, true
		return nil
	}
	p.tokens = tokens
	p.matchFn = (*Pattern).matchNATS
	return nil
}

func (p *Pattern) matchNATS(channel string) bool {
	words := strings.Split(channel, tokenSep)
	for i, tok := range p.tokens {
		if tok == ">" {
			return len(words) > i
		}
		if i >= len(words) || words[i] == "" {
			return false
		}
		if tok != "*" && tok != words[i] {
			return false
		}
	}
	return len(words) == len(p.tokens)
}

// ============================================================================
// rabbitmq-topic
// ============================================================================

func (p *Pattern) compileRabbitMQ() {
	raw := strings.Split(p.source, tokenSep)
	tokens := make([]string, 0, len(raw))
	wild := false
	for _, tok := range raw {
		if tok == "#" && len(tokens) > 0 && tokens[len(tokens)-1] == "#" {
			continue
		}
		if tok == "#" || tok == "*" {
			wild = true
		}
		tokens = append(tokens, tok)
	}
	if !wild {
		p.literal, p.isLit = p.source, true
		return
	}
	p.tokens = tokens
	p.matchFn = (*Pattern).matchRabbitMQ
}

func (p *Pattern) matchRabbitMQ(channel string) bool {
	return topicMatch(p.tokens, strings.Split(channel, tokenSep))
}

// topicMatch 按 (模式位置, 单词位置) 做动态规划，'#' 匹配零个或多个单词
// reach[j] 表示已处理的模式前缀能否恰好匹配 words[:j]
func topicMatch(pattern, words []string) bool {
	reach := make([]bool, len(words)+1)
	next := make([]bool, len(words)+1)
	reach[0] = true
	for _, tok := range pattern {
		switch tok {
		case "#":
			seen := false
			for j := range reach {
				seen = seen || reach[j]
				next[j] = seen
			}
		default:
			next[0] = false
			for j := 1; j <= len(words); j++ {
				next[j] = reach[j-1] && (tok == "*" || words[j-1] == tok)
			}
		}
		reach, next = next, reach
	}
	return reach[len(words)]
}
