// Package xmlevent drives a Handler with open, close and text events from a
// streaming XML reader, without building a tree of the document.
//
// Slices handed to a Handler (attributes and text) are only valid for the
// duration of the call; copy them to keep them.
package xmlevent

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jacoelho/xsd/pkg/xmlstream"
	"github.com/jacoelho/xsd/pkg/xmltext"
)

// DefaultMaxDepth bounds element nesting so a hostile document can't grow
// the reader's stacks without limit.
const DefaultMaxDepth = 512

// ctxCheckInterval is how many events pass between cancellation checks.
const ctxCheckInterval = 4096

// ErrEmptyDocument is returned for input without a root element.
var ErrEmptyDocument = errors.New("xml document has no root element")

// Attrs are the attributes of an open tag
type Attrs []xmlstream.StringAttr

// Get returns the value of the attribute with the given local name
func (a Attrs) Get(local string) (string, bool) {
	for _, attr := range a {
		if attr.LocalName() == local {
			return attr.Value(), true
		}
	}
	return "", false
}

// Handler receives document events in order. A non-nil error from any
// method stops the run and is returned by Run.
type Handler interface {
	OpenTag(name string, attrs Attrs) error
	CloseTag(name string) error
	Text(text []byte) error
	// End is called once, after the root element closed and the input was
	// fully read.
	End() error
}

// Options tunes the reader
type Options struct {
	MaxDepth int
}

func (o Options) readerOptions() []xmlstream.Option {
	depth := o.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return []xmlstream.Option{xmltext.MaxDepth(depth)}
}

// Run reads one XML document from r and feeds its events to h. Malformed
// input stops the run with an error; End is not called in that case.
func Run(ctx context.Context, r io.Reader, h Handler, opts ...Options) error {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	reader, err := xmlstream.NewStringReader(r, o.readerOptions()...)
	if err != nil {
		return fmt.Errorf("xml reader: %w", err)
	}

	var (
		depth    int
		seenRoot bool
		events   int
	)
	for {
		events++
		if events%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("xml read: %w", err)
		}

		switch ev.Kind {
		case xmlstream.EventStartElement:
			seenRoot = true
			depth++
			if err := h.OpenTag(ev.Name.Local, Attrs(ev.Attrs)); err != nil {
				return err
			}
		case xmlstream.EventEndElement:
			depth--
			if err := h.CloseTag(ev.Name.Local); err != nil {
				return err
			}
		case xmlstream.EventCharData:
			// whitespace around the root element carries nothing
			if depth == 0 {
				continue
			}
			if err := h.Text(ev.Text); err != nil {
				return err
			}
		}
	}

	if !seenRoot {
		return ErrEmptyDocument
	}
	if depth != 0 {
		line, col := reader.CurrentPos()
		return fmt.Errorf("xml read: %d unclosed elements at %d:%d: %w", depth, line, col, io.ErrUnexpectedEOF)
	}
	return h.End()
}

// RunFile opens path and runs h over it. Files ending in .gz are
// decompressed on the fly.
func RunFile(ctx context.Context, path string, h Handler, opts ...Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	return Run(ctx, r, h, opts...)
}

// IsBlank reports whether text is empty or only whitespace
func IsBlank(text []byte) bool {
	return len(bytes.TrimSpace(text)) == 0
}
