package stream

import (
	"encoding/json"
	"strings"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decoder pairs an event line with the data line that follows it. Data lines
// with no pending event and data that is not valid JSON are dropped.
type Decoder struct {
	event   string
	pending bool
	dropped int
}

func (d *Decoder) Line(line string) (Frame, bool) {
	must(d != nil, "decoder must not be nil")
	switch {
	case line == "":
		d.reset()
		return Frame{}, false
	case strings.HasPrefix(line, eventPrefix):
		d.event = strings.TrimSpace(line[len(eventPrefix):])
		d.pending = d.event != ""
		return Frame{}, false
	case strings.HasPrefix(line, dataPrefix):
		if !d.pending {
			d.dropped++
			return Frame{}, false
		}
		ev := d.event
		d.reset()
		data := strings.TrimSpace(line[len(dataPrefix):])
		if !json.Valid([]byte(data)) {
			d.dropped++
			return Frame{}, false
		}
		return Frame{Event: ev, Data: json.RawMessage(data)}, true
	}
	return Frame{}, false
}

// Dropped counts data lines discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) reset() {
	d.event = ""
	d.pending = false
}
