package camera

import (
	"bufio"
	"errors"
	"io"
)

// maxFrameSize bounds a single JPEG so a corrupt stream cannot grow a buffer
// without limit.
const maxFrameSize = 8 << 20

var errFrameTooLarge = errors.New("mjpeg frame exceeds size limit")

// mjpegReader splits a concatenated JPEG stream (ffmpeg image2pipe output)
// on SOI/EOI markers.
type mjpegReader struct {
	r *bufio.Reader
}

func newMJPEGReader(r io.Reader) *mjpegReader {
	return &mjpegReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads the next complete JPEG into buf. Bytes before the start marker
// are skipped.
func (m *mjpegReader) Next(buf []byte) ([]byte, error) {
	var prev byte
	for {
		b, err := m.r.ReadByte()
		if err != nil {
			return buf[:0], err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	buf = append(buf[:0], 0xFF, 0xD8)
	prev = 0
	for {
		b, err := m.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return buf[:0], err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		if len(buf) > maxFrameSize {
			return buf[:0], errFrameTooLarge
		}
		prev = b
	}
}
