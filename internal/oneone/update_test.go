package oneone

import (
	"testing"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/stretchr/testify/require"
)

func TestUpdateContentLengthShrinks(t *testing.T) {
	one, err := Update(RoleRequest, bytebuf.NewString("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\na"))
	require.NoError(t, err)
	require.Equal(t, "POST / HTTP/1.1\r\nContent-Length: 1\r\n\r\na", one.IntoBytes().String())
}

func TestUpdateContentLengthGrows(t *testing.T) {
	one, err := Update(RoleRequest, bytebuf.NewString("POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\nHello"))
	require.NoError(t, err)
	require.Equal(t, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nHello", one.IntoBytes().String())
}

func TestUpdateAddsMissingContentLength(t *testing.T) {
	one, err := Update(RoleRequest, bytebuf.NewString("POST / HTTP/1.1\r\n\r\nHello"))
	require.NoError(t, err)
	require.Equal(t, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nHello", one.IntoBytes().String())
}

func TestUpdateNoTerminator(t *testing.T) {
	_, err := Update(RoleRequest, bytebuf.NewString("POST / HTTP/1.1\r\n"))
	require.ErrorIs(t, err, ErrUpdateNoHeaderEnd)
}

func TestUpdateBodyless(t *testing.T) {
	one, err := Update(RoleResponse, bytebuf.NewString("HTTP/1.1 204 No Content\r\nServer: x\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 204 No Content\r\nServer: x\r\n\r\n", one.IntoBytes().String())
}
