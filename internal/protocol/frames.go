// Package protocol encodes answer streams as a single text stream and decodes
// them incrementally.
//
// A stream is one context frame, then raw token text, then one terminal frame:
//
//	__CONTEXT__{json}__END_CONTEXT__token token token\n\n__ENTRY_ID__42__
//
// or, on failure, a terminal `\n\n__ERROR__message__`.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/liliang-cn/synergereader/internal/domain"
)

// Frame markers
const (
	ContextStart = "__CONTEXT__"
	ContextEnd   = "__END_CONTEXT__"
	ErrorMarker  = "\n\n__ERROR__"
	EntryMarker  = "\n\n__ENTRY_ID__"
	Closer       = "__"
)

// ContentType is the media type of an encoded stream
const ContentType = "text/plain; charset=utf-8"

// ErrMalformed reports a stream that does not follow the frame layout
var ErrMalformed = errors.New("malformed answer stream")

// Encode renders one frame
func Encode(ev domain.StreamEvent) ([]byte, error) {
	switch ev := ev.(type) {
	case domain.ContextFrame:
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encoding context frame: %w", err)
		}
		// Underscores only occur inside JSON strings, so escaping them keeps
		// marker text in chunks from closing the frame early.
		payload = bytes.ReplaceAll(payload, []byte("_"), []byte(`\u005f`))
		out := make([]byte, 0, len(ContextStart)+len(payload)+len(ContextEnd))
		out = append(out, ContextStart...)
		out = append(out, payload...)
		return append(out, ContextEnd...), nil
	case domain.TokenFrame:
		return []byte(ev.Text), nil
	case domain.ErrorFrame:
		return []byte(ErrorMarker + ev.Message + Closer), nil
	case domain.CompletionFrame:
		return []byte(EntryMarker + strconv.FormatInt(ev.EntryID, 10) + Closer), nil
	}
	return nil, fmt.Errorf("unknown stream event %T", ev)
}

// Write encodes ev to w
func Write(w io.Writer, ev domain.StreamEvent) error {
	b, err := Encode(ev)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

type decodeState int

const (
	expectContext decodeState = iota
	inTokens
	finished
)

// Decoder reads frames from an encoded stream. Token frames are returned as
// soon as enough bytes arrive to rule out a terminal marker, so a token may be
// split across several TokenFrames.
type Decoder struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	eof   bool
	state decodeState
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 4096)}
}

// Next returns the next frame, or io.EOF after the terminal frame
func (d *Decoder) Next() (domain.StreamEvent, error) {
	switch d.state {
	case expectContext:
		return d.readContext()
	case inTokens:
		return d.readTokens()
	}
	return nil, io.EOF
}

func (d *Decoder) fill() error {
	if d.eof {
		return nil
	}
	n, err := d.r.Read(d.chunk)
	d.buf = append(d.buf, d.chunk[:n]...)
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil
	}
	return err
}

func (d *Decoder) readContext() (domain.StreamEvent, error) {
	for {
		if end := bytes.Index(d.buf, []byte(ContextEnd)); end >= 0 {
			head := bytes.TrimLeft(d.buf[:end], " \r\n\t")
			if !bytes.HasPrefix(head, []byte(ContextStart)) {
				return nil, fmt.Errorf("%w: missing context start marker", ErrMalformed)
			}

			var frame domain.ContextFrame
			if err := json.Unmarshal(head[len(ContextStart):], &frame); err != nil {
				return nil, fmt.Errorf("%w: context payload: %v", ErrMalformed, err)
			}

			d.buf = d.buf[end+len(ContextEnd):]
			d.state = inTokens
			return frame, nil
		}
		if d.eof {
			return nil, fmt.Errorf("%w: stream ended before context frame", ErrMalformed)
		}
		if err := d.fill(); err != nil {
			return nil, err
		}
	}
}

func (d *Decoder) readTokens() (domain.StreamEvent, error) {
	for {
		idx := firstMarker(d.buf)
		switch {
		case idx > 0:
			tok := string(d.buf[:idx])
			d.buf = d.buf[idx:]
			return domain.TokenFrame{Text: tok}, nil
		case idx == 0:
			for !d.eof {
				if err := d.fill(); err != nil {
					return nil, err
				}
			}
			return d.terminal()
		}

		if safe := len(d.buf) - partialMarker(d.buf); safe > 0 {
			tok := string(d.buf[:safe])
			d.buf = d.buf[safe:]
			return domain.TokenFrame{Text: tok}, nil
		}
		if d.eof {
			if len(d.buf) > 0 {
				tok := string(d.buf)
				d.buf = nil
				return domain.TokenFrame{Text: tok}, nil
			}
			d.state = finished
			return nil, fmt.Errorf("%w: stream ended without a terminal frame", ErrMalformed)
		}
		if err := d.fill(); err != nil {
			return nil, err
		}
	}
}

func (d *Decoder) terminal() (domain.StreamEvent, error) {
	d.state = finished
	rest := bytes.TrimSuffix(bytes.TrimRight(d.buf, "\r\n"), []byte(Closer))
	d.buf = nil

	if bytes.HasPrefix(rest, []byte(ErrorMarker)) {
		return domain.ErrorFrame{Message: string(rest[len(ErrorMarker):])}, nil
	}

	id, err := strconv.ParseInt(string(rest[len(EntryMarker):]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: entry id: %v", ErrMalformed, err)
	}
	return domain.CompletionFrame{EntryID: id}, nil
}

// firstMarker returns the index of the earliest terminal marker, or -1
func firstMarker(b []byte) int {
	idx := -1
	for _, m := range []string{ErrorMarker, EntryMarker} {
		if i := bytes.Index(b, []byte(m)); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	return idx
}

// partialMarker returns the length of the longest suffix of b that could be the
// start of a terminal marker
func partialMarker(b []byte) int {
	longest := 0
	for _, m := range []string{ErrorMarker, EntryMarker} {
		for n := min(len(m)-1, len(b)); n > longest; n-- {
			if bytes.HasSuffix(b, []byte(m[:n])) {
				longest = n
				break
			}
		}
	}
	return longest
}
