package match

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "relaybus-core/internal/core/errors"
)

type matchCase struct {
	pattern string
	channel string
	want    bool
}

func runMatchCases(t *testing.T, mode Mode, cases []matchCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.pattern+"~"+tc.channel, func(t *testing.T) {
			p, err := Compile(tc.pattern, mode)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Match(tc.channel))
		})
	}
}

func TestExact(t *testing.T) {
	runMatchCases(t, ModeExact, []matchCase{
		{"news", "news", true},
		{"news", "news.sports", false},
		{"news.*", "news.sports", false},
		{"news.*", "news.*", true},
	})
}

func TestRedisGlob(t *testing.T) {
	runMatchCases(t, ModeRedis, []matchCase{
		{"news.*", "news.sports", true},
		{"news.*", "news.", true},
		{"news.*", "newsflash", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"h[c-a]llo", "hbllo", true},
		{"h[a-c]llo", "hdllo", false},
		{`h\*llo`, "h*llo", true},
		{`h\*llo`, "hello", false},
		{`h[\]]llo`, "h]llo", true},
		{"*", "", true},
		{"*", "anything.at.all", true},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "acb", false},
		{"a**", "abc", true},
		{"plain", "plain", true},
		{"plain", "plainer", false},
		{"*[0-9]", "build7", true},
		{"*[0-9]", "build", false},
		{"a*[bc]d", "abxcd", true},
		{"a*[bc]d", "abxd", false},
		{`*\*`, "rate*", true},
		{"*x*", "aaxaa", true},
		{"*?", "", false},
		{"*a*a*b", "aaaab", true},
		{"*a*a*b", "aaaa", false},
		{"[abc", "b", true},
	})
}

func TestMatch_NoExponentialBacktracking(t *testing.T) {
	subject := strings.Repeat("a", 64)
	words := strings.TrimSuffix(strings.Repeat("a.", 64), ".")
	tests := []struct {
		name    string
		pattern string
		mode    Mode
		channel string
		want    bool
	}{
		{"glob miss", strings.Repeat("*a", 16) + "*b", ModeRedis, subject, false},
		{"glob hit", strings.Repeat("*a", 16) + "*", ModeRedis, subject, true},
		{"glob classes", strings.Repeat("*[a]", 16) + "*[b]", ModeRedis, subject, false},
		{"topic miss", strings.Repeat("#.a.", 16) + "b", ModeRabbitMQ, words, false},
		{"topic hit", strings.Repeat("#.a.", 16) + "#", ModeRabbitMQ, words, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustCompile(tt.pattern, tt.mode)
			done := make(chan bool, 1)
			go func() { done <- p.Match(tt.channel) }()

			select {
			case got := <-done:
				assert.Equal(t, tt.want, got)
			case <-time.After(time.Second):
				t.Fatalf("match of %q did not finish within 1s", tt.pattern)
			}
		})
	}
}

func TestNATSWildcard(t *testing.T) {
	runMatchCases(t, ModeNATS, []matchCase{
		{"news.*", "news.sports", true},
		{"news.*", "news.sports.live", false},
		{"news.*", "news", false},
		{"news.*", "news.", false},
		{"news.>", "news.sports", true},
		{"news.>", "news.sports.live", true},
		{"news.>", "news", false},
		{"*.sports", "news.sports", true},
		{"*.sports", "sports", false},
		{">", "a", true},
		{">", "a.b.c", true},
		{"a*.b", "a*.b", true},
		{"a*.b", "ax.b", false},
	})
}

func TestNATSWildcard_Invalid(t *testing.T) {
	for _, pattern := range []string{"news.>.live", "news..x", ".news", "news."} {
		_, err := Compile(pattern, ModeNATS)
		assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidPattern), pattern)
	}
}

func TestRabbitMQTopic(t *testing.T) {
	runMatchCases(t, ModeRabbitMQ, []matchCase{
		{"news.#", "news", true},
		{"news.#", "news.sports", true},
		{"news.#", "news.sports.live", true},
		{"news.#", "newsflash", false},
		{"news.*", "news.sports", true},
		{"news.*", "news", false},
		{"news.*", "news.sports.live", false},
		{"#.live", "live", true},
		{"#.live", "news.sports.live", true},
		{"#.live", "news.live.x", false},
		{"a.#.b", "a.b", true},
		{"a.#.b", "a.x.y.b", true},
		{"a.#.b", "a.b.c", false},
		{"a.#.#.b", "a.b", true},
		{"#", "anything.at.all", true},
		{"*.*", "a.b", true},
		{"*.*", "a", false},
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeExact},
		{"exact", ModeExact},
		{"redis-glob", ModeRedis},
		{"GLOB", ModeRedis},
		{"nats", ModeNATS},
		{"nats-wildcard", ModeNATS},
		{"rabbitmq-topic", ModeRabbitMQ},
		{"amqp", ModeRabbitMQ},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestUnsupportedModeIsRejected(t *testing.T) {
	_, err := ParseMode("regex")
	assert.ErrorIs(t, err, coreerrors.ErrUnsupportedMatchMode)

	_, err = Compile("news", Mode("regex"))
	assert.ErrorIs(t, err, coreerrors.ErrUnsupportedMatchMode)

	assert.False(t, Mode("regex").IsPattern())
	assert.False(t, Mode("").IsPattern())
	assert.True(t, ModeNATS.IsPattern())
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		pattern string
		mode    Mode
		lit     string
		ok      bool
	}{
		{"news", ModeExact, "news", true},
		{"news", ModeRedis, "news", true},
		{`news\*`, ModeRedis, "news*", true},
		{"news.*", ModeRedis, "", false},
		{"news.sports", ModeNATS, "news.sports", true},
		{"news.*", ModeNATS, "", false},
		{"news.sports", ModeRabbitMQ, "news.sports", true},
		{"news.#", ModeRabbitMQ, "", false},
	}
	for _, tt := range tests {
		p := MustCompile(tt.pattern, tt.mode)
		lit, ok := p.Literal()
		assert.Equal(t, tt.ok, ok, tt.pattern)
		assert.Equal(t, tt.lit, lit, tt.pattern)
	}
}

func TestToGlob(t *testing.T) {
	tests := []struct {
		pattern string
		mode    Mode
		want    string
	}{
		{"news", ModeExact, "news"},
		{"a*b", ModeExact, `a\*b`},
		{"h[ae]llo", ModeRedis, "h[ae]llo"},
		{"news.*", ModeNATS, "news.*"},
		{"news.>", ModeNATS, "news.*"},
		{"news.#", ModeRabbitMQ, "news*"},
		{"#.live", ModeRabbitMQ, "*live"},
		{"a.#.b", ModeRabbitMQ, "a*b"},
		{"a.*.b", ModeRabbitMQ, "a.*.b"},
	}
	for _, tt := range tests {
		got, err := ToGlob(tt.pattern, tt.mode)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.pattern)
	}

	_, err := ToGlob("a.>.b", ModeNATS)
	assert.Error(t, err)
}

func TestToGlob_IsSuperset(t *testing.T) {
	cases := []struct {
		pattern string
		mode    Mode
		channel string
	}{
		{"news.#", ModeRabbitMQ, "news"},
		{"news.#", ModeRabbitMQ, "news.sports.live"},
		{"a.#.b", ModeRabbitMQ, "a.b"},
		{"#.live", ModeRabbitMQ, "live"},
		{"news.>", ModeNATS, "news.a.b"},
		{"*.sports", ModeNATS, "news.sports"},
		{"a*b", ModeExact, "a*b"},
	}
	for _, tc := range cases {
		p := MustCompile(tc.pattern, tc.mode)
		require.True(t, p.Match(tc.channel))
		glob, err := ToGlob(tc.pattern, tc.mode)
		require.NoError(t, err)
		assert.True(t, globMatch(glob, tc.channel), "%s -> %s should match %s", tc.pattern, glob, tc.channel)
	}
}

func TestCache(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	p1, err := c.Compile("news.*", ModeNATS)
	require.NoError(t, err)
	p2, err := c.Compile("news.*", "nats")
	require.NoError(t, err)
	assert.Same(t, p1, p2, "aliases share one cache entry")

	_, err = c.Compile("news.>.x", ModeNATS)
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len(), "failed compiles are not cached")

	c.Compile("a", ModeExact)
	c.Compile("b", ModeExact)
	assert.Equal(t, 2, c.Len())

	p3, err := c.Compile("news.*", ModeNATS)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3, "least recently used entry was evicted")
}

func TestCache_Concurrent(t *testing.T) {
	c, err := NewCache(16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Pattern, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Compile("orders.#", ModeRabbitMQ)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		require.NotNil(t, p)
		assert.True(t, p.Match("orders.eu.created"))
	}
	assert.Equal(t, 1, c.Len())
}
