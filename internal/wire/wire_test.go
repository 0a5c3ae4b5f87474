package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/harpoon-proxy/harpoon/internal/intercept"
	"github.com/harpoon-proxy/harpoon/internal/serverinfo"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sent := intercept.NewHTTPReqToUI(7, &serverinfo.JSON{Host: "example.org", HTTP: "1"})
	require.NoError(t, Write(&buf, 42, sent))

	var got intercept.ToUI
	id, err := Read(&buf, &got)
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.Equal(t, 7, got.ID)
	require.Equal(t, intercept.FileReq, got.Ft)
	require.Equal(t, "example.org", got.ServerInfo.Host)
}

func TestMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	for i := range 3 {
		require.NoError(t, Write(&buf, i, map[string]int{"n": i}))
	}

	for i := range 3 {
		var got map[string]int
		id, err := Read(&buf, &got)
		require.NoError(t, err)
		require.Equal(t, i, id)
		require.Equal(t, i, got["n"])
	}

	_, err := Read(&buf, nil)
	require.ErrorIs(t, err, io.EOF)
}

func TestShortRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, 1, "payload"))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	_, err := Read(truncated, nil)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOversizeRejected(t *testing.T) {
	var prefix [4]byte
	prefix[0] = 0xff
	_, err := Read(bytes.NewReader(append(prefix[:], 0)), nil)
	require.ErrorIs(t, err, ErrRecordTooLarge)
}
