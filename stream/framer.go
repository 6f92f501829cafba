package stream

import "strings"

// Framer splits incrementally delivered text into complete lines. A line that
// is not yet terminated is held until the next Push or Flush.
type Framer struct {
	tail strings.Builder
}

func (f *Framer) Push(chunk string) []string {
	must(f != nil, "framer must not be nil")
	if chunk == "" {
		return nil
	}
	var out []string
	for {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			f.tail.WriteString(chunk)
			return out
		}
		f.tail.WriteString(chunk[:i])
		out = append(out, trimCR(f.tail.String()))
		f.tail.Reset()
		chunk = chunk[i+1:]
	}
}

// Flush returns the pending partial line, if any, as a complete line.
func (f *Framer) Flush() []string {
	must(f != nil, "framer must not be nil")
	if f.tail.Len() == 0 {
		return nil
	}
	line := trimCR(f.tail.String())
	f.tail.Reset()
	return []string{line}
}

func trimCR(s string) string {
	return strings.TrimSuffix(s, "\r")
}
