package driver

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
	"unicode/utf8"

	"github.com/docker/docker/api/types/plugins/logdriver"
	"github.com/pkg/errors"
)

// defaultLevel is assigned to log lines that carry no level of their own.
const defaultLevel = 3

// LogMessage is one normalized log record in the shape the ingest API
// accepts. Timestamp marshals as RFC 3339 UTC.
type LogMessage struct {
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	Level     int32                  `json:"level"`
	Context   map[string]interface{} `json:"context"`
}

// newLogMessage converts one decoded frame into an ingest-ready record.
//
// Lines that hold a JSON object are unpacked: the "message" and "level"
// keys become the record's message and level, and every remaining key is
// carried in the context. Anything else must be plain UTF-8 text and is
// shipped verbatim at the default level. The context always carries a
// "source" entry naming the entry's stream; it overrides a same-named key
// from the line.
func newLogMessage(entry *logdriver.LogEntry) (LogMessage, error) {
	// TimeNano carries milliseconds since the Unix epoch on this stream,
	// despite the field name.
	ts := time.UnixMilli(entry.TimeNano).UTC()
	if ts.Year() < 0 || ts.Year() > 9999 {
		return LogMessage{}, errors.Errorf("invalid timestamp %d", entry.TimeNano)
	}

	root, isJSON := decodeLine(entry.Line)
	if !isJSON {
		if !utf8.Valid(entry.Line) {
			return LogMessage{}, errors.New("log line is not valid UTF-8")
		}
		return LogMessage{
			Timestamp: ts,
			Message:   string(entry.Line),
			Level:     defaultLevel,
			Context:   map[string]interface{}{"source": entry.Source},
		}, nil
	}

	obj, ok := root.(map[string]interface{})
	if !ok {
		return LogMessage{}, errors.New("unexpected log line format")
	}

	message := ""
	if raw, present := obj["message"]; present {
		s, ok := raw.(string)
		if !ok {
			return LogMessage{}, errors.New("log message is not a string")
		}
		message = s
	}

	level := int32(defaultLevel)
	if raw, present := obj["level"]; present {
		num, ok := raw.(json.Number)
		if !ok {
			return LogMessage{}, errors.New("log level is not an integer")
		}
		n, err := num.Int64()
		if err != nil {
			return LogMessage{}, errors.New("log level is not an integer")
		}
		level = int32(n)
	}

	context := make(map[string]interface{}, len(obj)+1)
	for k, v := range obj {
		if k == "message" || k == "level" {
			continue
		}
		context[k] = v
	}
	context["source"] = entry.Source

	return LogMessage{
		Timestamp: ts,
		Message:   message,
		Level:     level,
		Context:   context,
	}, nil
}

// decodeLine parses line as a single JSON document, reporting false when it
// is not one (including trailing data after a valid value). Numbers are kept
// as json.Number so context values re-marshal exactly as they arrived.
func decodeLine(line []byte) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return root, true
}
