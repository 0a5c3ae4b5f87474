package config

import (
	"testing"

	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/stretchr/testify/require"
)

func boolp(v bool) *bool { return &v }

func TestBuildGlobalOnly(t *testing.T) {
	policy := Build(nil, &Global{
		ExcludedDomains:      []string{"*.google.com"},
		ExcludedContentTypes: []mime.ContentType{mime.Image, mime.Video, mime.Audio},
		ExcludedExtensions:   []string{"png", "jpg"},
	})
	require.NotNil(t, policy)
	require.Equal(t, FilterExclude, policy.Filter.Mode)
	require.Equal(t, []string{"jpg", "png"}, policy.ExcludedExtensions)
	require.False(t, policy.WithWS())
}

func TestBuildLocalIncludeWins(t *testing.T) {
	local := &ProxyArgs{IncludedDomains: []string{"*.google.com"}}
	global := &Global{ExcludedDomains: []string{"*.google.com", "reddit.com"}}

	policy := Build(local, global)
	require.Equal(t, FilterInclude, policy.Filter.Mode)
	require.True(t, policy.ShouldProxy("maps.google.com"))
	require.False(t, policy.ShouldProxy("reddit.com"))
}

func TestBuildExclusionsMerge(t *testing.T) {
	local := &ProxyArgs{ExcludedDomains: []string{"reddit.com", "a.com"}}
	global := &Global{ExcludedDomains: []string{"reddit.com", "b.com"}}

	policy := Build(local, global)
	require.Equal(t, FilterExclude, policy.Filter.Mode)
	require.False(t, policy.ShouldProxy("reddit.com"))
	require.False(t, policy.ShouldProxy("a.com"))
	require.False(t, policy.ShouldProxy("b.com"))
	require.True(t, policy.ShouldProxy("c.com"))
}

func TestBuildNothingCompilesToNil(t *testing.T) {
	require.Nil(t, Build(nil, &Global{WithWS: boolp(true)}))

	var nilPolicy *Policy
	require.True(t, nilPolicy.ShouldProxy("anything.example"))
	require.True(t, nilPolicy.ShouldLog("png"))
	require.True(t, nilPolicy.WithWS())
}

func TestNoWSGatesGlobal(t *testing.T) {
	policy := Build(
		&ProxyArgs{NoWS: boolp(true)},
		&Global{WithWS: boolp(true), ExcludedDomains: []string{"x.com"}},
	)
	require.False(t, policy.WithWS())
}

func TestShouldProxyWildcardAndPort(t *testing.T) {
	policy := Build(nil, &Global{ExcludedDomains: []string{"*.google.com", "reddit.com"}})

	require.False(t, policy.ShouldProxy("mail.google.com"))
	require.False(t, policy.ShouldProxy("reddit.com:443"))
	require.True(t, policy.ShouldProxy("google.com"))
	require.True(t, policy.ShouldProxy("example.org"))
}

func TestShouldLog(t *testing.T) {
	policy := Build(nil, &Global{
		ExcludedExtensions:   []string{"woff2"},
		ExcludedContentTypes: []mime.ContentType{mime.Image},
	})

	require.False(t, policy.ShouldLog("woff2"))
	require.False(t, policy.ShouldLog("PNG"), "extension lookup is case-insensitive")
	require.True(t, policy.ShouldLog("html"))
	require.True(t, policy.ShouldLog(""), "no extension always logs")
	require.True(t, policy.ShouldLog("unknownext"))
}

func TestDomainList(t *testing.T) {
	list := NewDomainList([]string{"Example.COM", " spaced.io ", "*.wild.dev", ""})

	require.True(t, list.Contains("example.com"))
	require.True(t, list.Contains("spaced.io"))
	require.True(t, list.Contains("a.wild.dev"))
	require.False(t, list.Contains("wild.dev"))
	require.False(t, list.Contains("other.net"))
}
