package sender

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
)

// maxResourceSize keeps every offset the receiver computes, including the
// one past the last unit, within int32.
const maxResourceSize = math.MaxInt32 - protocol.MaxPayload

// source cuts a file into MaxPayload-sized units followed by an empty FIN
// unit whose seq is the file size.
type source struct {
	f      *os.File
	name   string
	offset int32
	done   bool
	buf    []byte
}

// openResource opens name inside root. Names escaping root, directories and
// files too large for 32-bit offsets are refused.
func openResource(root, name string) (*source, error) {
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("resource %q escapes root", name)
	}
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("resource %q is not a regular file", name)
	}
	if fi.Size() > maxResourceSize {
		f.Close()
		return nil, fmt.Errorf("resource %q is too large: %d bytes", name, fi.Size())
	}

	return &source{
		f:    f,
		name: filepath.Join(root, name),
		buf:  make([]byte, protocol.MaxPayload),
	}, nil
}

func (s *source) Name() string { return s.name }

// Next returns the next unit. The FIN unit is returned exactly once;
// calling Next after it returns io.EOF.
func (s *source) Next() (protocol.Frame, error) {
	if s.done {
		return protocol.Frame{}, io.EOF
	}
	n, err := io.ReadFull(s.f, s.buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return protocol.NewData(s.offset, nil, true), nil
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		return protocol.Frame{}, fmt.Errorf("read %s: %w", s.name, err)
	}
	unit := protocol.NewData(s.offset, s.buf[:n], false)
	s.offset += int32(n)
	return unit, nil
}

func (s *source) Close() error { return s.f.Close() }
