package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"foo",
		"foo.bar",
		"foo.*.bar",
		"foo.#",
		"#.bar",
		"#",
		"*",
		"sensors.imu.acc",
		"snapshot",
	}
	for _, tc := range valid {
		assert.Truef(t, Validate(tc), "expected %q to be valid", tc)
	}

	invalid := []string{
		"",
		".foo",
		"foo.",
		"foo..bar",
		"foo*",
		"foo#bar",
		"foo.*bar",
	}
	for _, tc := range invalid {
		assert.Falsef(t, Validate(tc), "expected %q to be invalid", tc)
	}
}

func TestIsConcrete(t *testing.T) {
	assert.True(t, IsConcrete("foo.bar"))
	assert.False(t, IsConcrete("foo.*"))
	assert.False(t, IsConcrete("foo.#"))
}

func TestMatcherSingleWildcard(t *testing.T) {
	m := Compile("foo.*.bar")
	assert.True(t, m.Match("foo.x.bar"))
	assert.True(t, m.Match("foo.y.bar"))
	assert.False(t, m.Match("foo.bar"))
	assert.False(t, m.Match("foo.x.y.bar"))
}

func TestMatcherTrailingHash(t *testing.T) {
	m := Compile("foo.#")
	assert.True(t, m.Match("foo"))
	assert.True(t, m.Match("foo.x"))
	assert.True(t, m.Match("foo.x.y"))
	assert.False(t, m.Match("foobar"))
	assert.False(t, m.Match("bar.foo"))
}

func TestMatcherLeadingHash(t *testing.T) {
	m := Compile("#.bar")
	assert.True(t, m.Match("bar"))
	assert.True(t, m.Match("x.bar"))
	assert.True(t, m.Match("x.y.bar"))
	assert.False(t, m.Match("bar.x"))
}

func TestMatcherBareHash(t *testing.T) {
	m := Compile("#")
	for _, topic := range []string{"foo", "foo.bar", "a.b.c"} {
		assert.True(t, m.Match(topic))
	}
}

func TestUpstreamPrefix(t *testing.T) {
	assert.Equal(t, "foo", UpstreamPrefix("foo.*.bar"))
	assert.Equal(t, "foo", UpstreamPrefix("foo.#"))
	assert.Equal(t, "", UpstreamPrefix("#.bar"))
	assert.Equal(t, "", UpstreamPrefix("#"))
	assert.Equal(t, "foo.bar", UpstreamPrefix("foo.bar"))
}

func TestUpstreamPrefixIsPrefixOfMatches(t *testing.T) {
	cases := []struct {
		pattern string
		topics  []string
	}{
		{"foo.*.bar", []string{"foo.x.bar", "foo.y.bar"}},
		{"foo.#", []string{"foo", "foo.x", "foo.x.y"}},
		{"#.bar", []string{"bar", "x.bar", "x.y.bar"}},
	}
	for _, tc := range cases {
		m := Compile(tc.pattern)
		prefix := UpstreamPrefix(tc.pattern)
		for _, topic := range tc.topics {
			assert.True(t, m.Match(topic))
			assert.True(t, len(topic) >= len(prefix) && topic[:len(prefix)] == prefix,
				"prefix %q must prefix matched topic %q", prefix, topic)
		}
	}
}
