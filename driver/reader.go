package driver

import (
	"encoding/binary"
	"io"

	"github.com/docker/docker/api/types/plugins/logdriver"
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

// maxFrameSize bounds a single frame. A larger length header indicates a
// corrupt stream rather than a genuine log line.
const maxFrameSize = 1000000

// logReader decodes the stream the engine writes into a log plugin's FIFO:
// a 4-byte big-endian length followed by that many bytes of protobuf-encoded
// LogEntry, repeated until the pipe is closed.
type logReader struct {
	r      io.Reader
	lenBuf [4]byte
	buf    []byte
}

func newLogReader(r io.Reader) *logReader {
	return &logReader{r: r}
}

// Next decodes the next frame into entry. It returns false with a nil error
// when the stream is exhausted; the engine may close the pipe between frames
// or mid-frame without notice, so truncation of the length header or payload
// is a normal end of stream, not an error. A payload that was read in full
// but does not decode is a terminal error, even when the protobuf decoder
// reports the corruption as an unexpected EOF.
func (lr *logReader) Next(entry *logdriver.LogEntry) (bool, error) {
	if _, err := io.ReadFull(lr.r, lr.lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}

	n := binary.BigEndian.Uint32(lr.lenBuf[:])
	if n > maxFrameSize {
		return false, errors.Errorf("frame length %d exceeds maximum %d", n, maxFrameSize)
	}

	if cap(lr.buf) < int(n) {
		lr.buf = make([]byte, n)
	}
	payload := lr.buf[:n]
	if _, err := io.ReadFull(lr.r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}

	entry.Reset()
	if err := proto.Unmarshal(payload, entry); err != nil {
		return false, errors.Wrap(err, "decoding log entry")
	}
	return true, nil
}
