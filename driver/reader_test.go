package driver

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/docker/docker/api/types/plugins/logdriver"
	protoio "github.com/gogo/protobuf/io"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStream encodes entries in the length-prefixed wire framing the
// engine writes into the FIFO.
func buildStream(t *testing.T, entries ...*logdriver.LogEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := protoio.NewUint32DelimitedWriter(&buf, binary.BigEndian)
	for _, e := range entries {
		require.NoError(t, w.WriteMsg(e))
	}
	return buf.Bytes()
}

func testEntry(line string) *logdriver.LogEntry {
	return &logdriver.LogEntry{
		Source:   "stdout",
		TimeNano: 1620000000000,
		Line:     []byte(line),
	}
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, f.err
}

func TestLogReaderDecodesFrames(t *testing.T) {
	stream := buildStream(t, testEntry("first"), testEntry("second"))
	lr := newLogReader(bytes.NewReader(stream))

	var entry logdriver.LogEntry
	ok, err := lr.Next(&entry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(entry.Line))
	assert.Equal(t, "stdout", entry.Source)
	assert.Equal(t, int64(1620000000000), entry.TimeNano)

	ok, err = lr.Next(&entry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(entry.Line))

	ok, err = lr.Next(&entry)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogReaderCleanEOF(t *testing.T) {
	frame := buildStream(t, testEntry("test"))

	tests := []struct {
		name   string
		stream []byte
	}{
		{"empty stream", nil},
		{"truncated inside length header", frame[:2]},
		{"truncated inside payload", frame[:len(frame)-2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLogReader(bytes.NewReader(tt.stream))

			var entry logdriver.LogEntry
			ok, err := lr.Next(&entry)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLogReaderTruncationAfterFullFrame(t *testing.T) {
	full := buildStream(t, testEntry("kept"))
	next := buildStream(t, testEntry("cut off"))
	stream := append(full, next[:len(next)-3]...)

	lr := newLogReader(bytes.NewReader(stream))

	var entry logdriver.LogEntry
	ok, err := lr.Next(&entry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kept", string(entry.Line))

	ok, err = lr.Next(&entry)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogReaderDecodeError(t *testing.T) {
	// Fully-read payloads that are not a LogEntry. The first decodes to a
	// truncated inner varint, which the protobuf decoder reports as an
	// unexpected EOF; that must stay distinct from stream truncation and
	// surface as a terminal error, not a clean end of stream.
	tests := []struct {
		name    string
		payload []byte
	}{
		{"truncated inner varint", []byte{0xff, 0xff, 0xff, 0xff, 0xff}},
		{"bad wire type", []byte{0x0f, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(tt.payload))))
			buf.Write(tt.payload)

			lr := newLogReader(&buf)

			var entry logdriver.LogEntry
			_, err := lr.Next(&entry)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "decoding log entry")
		})
	}
}

func TestLogReaderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(maxFrameSize+1)))
	buf.Write(make([]byte, 64))

	lr := newLogReader(&buf)

	var entry logdriver.LogEntry
	_, err := lr.Next(&entry)
	require.Error(t, err)
}

func TestLogReaderPropagatesReadErrors(t *testing.T) {
	lr := newLogReader(&failingReader{err: errors.New("pipe gone bad")})

	var entry logdriver.LogEntry
	_, err := lr.Next(&entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe gone bad")
}
