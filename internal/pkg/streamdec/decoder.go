// Package streamdec incrementally extracts self-contained JSON records from a
// token stream. Records are delimited by markdown code fences; fragments may
// split anywhere, including inside the fence markers themselves.
package streamdec

import (
	"strings"

	"go.uber.org/zap"
)

const fence = "```"

// Decoder scans a growing text buffer for complete fenced JSON records and
// emits each exactly once, in order of first appearance. The scan resumes
// from an explicit position between chunks instead of re-scanning the whole
// buffer, and extracted records are spliced out so the buffer stays bounded.
//
// One Decoder serves exactly one stream; it is not safe for concurrent use.
type Decoder[T any] struct {
	parse func([]byte) (T, error)
	log   *zap.Logger

	pending  string
	seen     map[string]struct{}
	accepted int
	max      int // 0 = no cap
}

// New builds a decoder. parse validates and converts one record's JSON body;
// a parse error drops the record silently (logged, never fatal). max caps the
// number of accepted records, 0 means unlimited.
func New[T any](parse func([]byte) (T, error), max int, log *zap.Logger) *Decoder[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder[T]{
		parse: parse,
		log:   log,
		seen:  make(map[string]struct{}),
		max:   max,
	}
}

// Done reports whether the record cap has been reached. Once done, callers
// should stop feeding and cancel the upstream read.
func (d *Decoder[T]) Done() bool {
	return d.max > 0 && d.accepted >= d.max
}

// Accepted returns the number of records emitted so far.
func (d *Decoder[T]) Accepted() int { return d.accepted }

// Feed appends one chunk and returns every newly completed record, in the
// order they first appeared in the stream.
func (d *Decoder[T]) Feed(chunk string) []T {
	if d.Done() || chunk == "" {
		return nil
	}
	d.pending += chunk

	var out []T
	for !d.Done() {
		open := strings.Index(d.pending, fence)
		if open < 0 {
			// No opener; keep only a tail that could be a split fence marker.
			d.trimToTail()
			break
		}
		rest := d.pending[open+len(fence):]
		closing := strings.Index(rest, fence)
		if closing < 0 {
			// Opener without closer: the record is still arriving. Drop the
			// text before the opener, it can never become part of a record.
			d.pending = d.pending[open:]
			break
		}

		matched := d.pending[open : open+len(fence)+closing+len(fence)]
		body := stripFenceTag(rest[:closing])
		d.pending = d.pending[open+len(fence)+closing+len(fence):]

		if _, dup := d.seen[matched]; dup {
			continue
		}
		// Failed parses enter the seen-set too, so a malformed record is
		// never re-parsed on later scans.
		d.seen[matched] = struct{}{}

		record, err := d.parse([]byte(body))
		if err != nil {
			d.log.Debug("dropping malformed stream record", zap.Error(err))
			continue
		}
		out = append(out, record)
		d.accepted++
	}
	return out
}

// trimToTail discards buffer content that cannot participate in a future
// fence opener, keeping at most the last len(fence)-1 bytes.
func (d *Decoder[T]) trimToTail() {
	keep := len(fence) - 1
	if len(d.pending) > keep {
		d.pending = d.pending[len(d.pending)-keep:]
	}
}

// stripFenceTag removes the language tag line after the opening fence.
func stripFenceTag(body string) string {
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{}") {
			return body[nl+1:]
		}
	}
	return strings.TrimPrefix(strings.TrimPrefix(body, "json"), "JSON")
}
