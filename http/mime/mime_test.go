package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	require.Equal(t, Application, Parse("application"))
	require.Equal(t, Application, Parse("app"))
	require.Equal(t, Text, Parse("text"))
	require.Equal(t, Image, Parse("img"))
	require.Equal(t, Unknown, Parse("nonsense"))
}

func TestTextRoundTrip(t *testing.T) {
	for _, ct := range []ContentType{Application, Audio, Font, Image, Message, Model, Multipart, Text, Video} {
		raw, err := ct.MarshalText()
		require.NoError(t, err)

		var back ContentType
		require.NoError(t, back.UnmarshalText(raw))
		require.Equal(t, ct, back)
	}
}

func TestFromAcceptHeader(t *testing.T) {
	ct, ok := FromAcceptHeader("text/html, text/plain")
	require.True(t, ok)
	require.Equal(t, Text, ct)

	_, ok = FromAcceptHeader("text/html, application/json")
	require.False(t, ok, "mixed main types have no single answer")

	_, ok = FromAcceptHeader("*/*")
	require.False(t, ok)
}

func TestExtensionMap(t *testing.T) {
	require.Equal(t, Image, Extension["png"])
	require.Equal(t, Text, Extension["html"])
	require.Equal(t, Font, Extension["woff2"])

	_, known := Extension["nope"]
	require.False(t, known)
}
