package framer

import "strings"

// DefaultMaxRecordBytes bounds the carry-over buffer. A link that never sends a
// terminator would otherwise grow it forever.
const DefaultMaxRecordBytes = 4096

// Framer reassembles newline-terminated text records from arbitrarily chunked
// serial reads.
//
// A Framer is not safe for concurrent use; one transport feeds one Framer.
type Framer struct {
	maxRecord int
	pending   string
	discarded uint64
}

func New(maxRecordBytes int) *Framer {
	if maxRecordBytes <= 0 {
		maxRecordBytes = DefaultMaxRecordBytes
	}
	return &Framer{maxRecord: maxRecordBytes}
}

// Push appends chunk to the carry-over and returns every record completed by
// it, in order. A trailing fragment without terminator is kept for the next
// call.
func (f *Framer) Push(chunk string) []string {
	if f.maxRecord <= 0 {
		f.maxRecord = DefaultMaxRecordBytes
	}
	buf := f.pending + chunk
	f.pending = ""
	if buf == "" {
		return nil
	}

	segs := strings.FieldsFunc(buf, isTerminator)
	if !isTerminator(rune(buf[len(buf)-1])) && len(segs) > 0 {
		tail := segs[len(segs)-1]
		segs = segs[:len(segs)-1]
		if len(tail) > f.maxRecord {
			f.discarded++
		} else {
			f.pending = tail
		}
	}

	out := make([]string, 0, len(segs))
	for _, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Pending returns the unterminated carry-over.
func (f *Framer) Pending() string {
	return f.pending
}

// Discarded counts carry-over fragments dropped for exceeding the record limit.
func (f *Framer) Discarded() uint64 {
	return f.discarded
}

func (f *Framer) Reset() {
	f.pending = ""
}

func isTerminator(r rune) bool {
	return r == '\r' || r == '\n'
}
