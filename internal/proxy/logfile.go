package proxy

import (
	"io"
	"os"
	"strconv"

	"github.com/harpoon-proxy/harpoon/internal/oneone"
	"golang.org/x/sys/unix"
)

// writeLogFile persists the frame bytes as history/<N>/<N>.req|.res. The
// request artifact carries the routing metadata as extended attributes so
// external tools can replay it without parsing the session log.
func (h *httpSession) writeLogFile() error {
	path := h.logPath()
	if err := os.WriteFile(path, h.payload.Bytes(), 0o644); err != nil {
		return err
	}

	if h.role != oneone.RoleRequest {
		return nil
	}

	info := &h.c.info
	setxattr(path, "user.host", info.Address.StringFromScheme(info.Scheme))
	if info.SNIDiffers() {
		setxattr(path, "user.sni", info.SNI)
	}
	if !info.TLS() {
		setxattr(path, "user.http", "1")
	}

	return nil
}

// setxattr is best effort: filesystems without xattr support only lose the
// metadata, never the artifact.
func setxattr(path, name, value string) {
	_ = unix.Setxattr(path, name, []byte(value), 0) //nolint:errcheck
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// copyStream is io.Copy without the WriterTo/ReaderFrom shortcuts, usable
// on TLS and plain streams alike.
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
