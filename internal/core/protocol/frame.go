package protocol

import (
	"fmt"
	"io"

	"github.com/zeusync/replica/pkg/encoding"
)

// DefaultMaxFrameSize bounds one framed message.
const DefaultMaxFrameSize = 1 << 20

// WriteFrame writes data prefixed with its u32 length.
func WriteFrame(w io.Writer, data []byte, maxSize int) error {
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), maxSize)
	}
	frame := encoding.NewWriter(make([]byte, 0, 4+len(data)))
	frame.Bytes32(data)
	_, err := w.Write(frame.Bytes())
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size, _ := encoding.NewReader(header[:]).Uint32()
	if int64(size) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
