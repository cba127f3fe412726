package match

import "strings"

const globMeta = `*?[\`

// globMatch 按 Redis stringmatch 语义匹配，按字节比较
// 除 '*' 外每个元素恰好消耗一个字节，只需记住最近一个 '*' 的回溯点，复杂度 O(len(pattern)*len(s))
func globMatch(pattern, s string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, 0
	for px < len(pattern) || sx < len(s) {
		if px < len(pattern) {
			switch c := pattern[px]; c {
			case '*':
				starPx, starSx = px, sx
				px++
				continue
			case '?':
				if sx < len(s) {
					px++
					sx++
					continue
				}
			case '[':
				if sx < len(s) {
					if rest, ok := matchClass(pattern[px+1:], s[sx]); ok {
						px = len(pattern) - len(rest)
						sx++
						continue
					}
				}
			default:
				width := 1
				if c == '\\' && px+1 < len(pattern) {
					c = pattern[px+1]
					width = 2
				}
				if sx < len(s) && s[sx] == c {
					px += width
					sx++
					continue
				}
			}
		}
		// 失配：让最近的 '*' 多吞一个字节后重试
		if starPx >= 0 && starSx < len(s) {
			starSx++
			px, sx = starPx+1, starSx
			continue
		}
		return false
	}
	return true
}

// matchClass 匹配 '[' 之后的字符类，返回 ']' 之后的剩余模式
// 未闭合的字符类延伸到模式末尾
func matchClass(pattern string, c byte) (string, bool) {
	negate := false
	if len(pattern) > 0 && pattern[0] == '^' {
		negate = true
		pattern = pattern[1:]
	}

	matched := false
	for len(pattern) > 0 && pattern[0] != ']' {
		switch {
		case pattern[0] == '\\' && len(pattern) >= 2:
			pattern = pattern[1:]
			if pattern[0] == c {
				matched = true
			}
		case len(pattern) >= 3 && pattern[1] == '-':
			lo, hi := pattern[0], pattern[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			pattern = pattern[2:]
		default:
			if pattern[0] == c {
				matched = true
			}
		}
		pattern = pattern[1:]
	}
	if len(pattern) > 0 {
		pattern = pattern[1:]
	}

	if negate {
		matched = !matched
	}
	return pattern, matched
}

// globLiteral 不含通配符的 glob 返回去转义后的字面量
func globLiteral(pattern string) (string, bool) {
	if !strings.ContainsAny(pattern, globMeta) {
		return pattern, true
	}
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*', '?', '[':
			return "", false
		case '\\':
			if i+1 < len(pattern) {
				i++
				c = pattern[i]
			}
		}
		b.WriteByte(c)
	}
	return b.String(), true
}

// EscapeGlob 转义 glob 元字符，使字面频道可用作 glob
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, globMeta+"]") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ToGlob 把任意方言的模式转换为 Redis glob
// 结果是超集：token 方言中的 * 会跨越分隔符，调用方需在本地再次精确匹配
func ToGlob(pattern string, mode Mode) (string, error) {
	p, err := Compile(pattern, mode)
	if err != nil {
		return "", err
	}
	if lit, ok := p.Literal(); ok {
		return EscapeGlob(lit), nil
	}

	switch p.mode {
	case ModeRedis:
		return p.source, nil
	case ModeNATS:
		var b strings.Builder
		for i, tok := range p.tokens {
			if i > 0 {
				b.WriteString(tokenSep)
			}
			switch tok {
			case "*", ">":
				b.WriteByte('*')
			default:
				b.WriteString(EscapeGlob(tok))
			}
		}
		return b.String(), nil
	default:
		// rabbitmq-topic: '#' 吸收两侧分隔符，以便匹配零个 token
		var b strings.Builder
		prevHash := false
		for i, tok := range p.tokens {
			if tok == "#" {
				b.WriteByte('*')
				prevHash = true
				continue
			}
			if i > 0 && !prevHash {
				b.WriteString(tokenSep)
			}
			prevHash = false
			if tok == "*" {
				b.WriteByte('*')
			} else {
				b.WriteString(EscapeGlob(tok))
			}
		}
		return b.String(), nil
	}
}
