package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"ragchat/types"
)

// ErrUndecodableText is returned for a page whose strings do not map to
// Unicode, typically a CID font shipped without a ToUnicode map.
var ErrUndecodableText = errors.New("page text cannot be decoded to unicode")

// PDFLoader emits one segment per page that carries text. Strings are decoded
// through each font's encoding or ToUnicode map. When a crop is configured the
// file is cropped into a temp copy first and text outside the page CropBox is
// dropped; the source file is never modified.
type PDFLoader struct {
	cropTop    float64
	cropBottom float64
}

func NewPDFLoader(cropTop, cropBottom float64) *PDFLoader {
	return &PDFLoader{cropTop: cropTop, cropBottom: cropBottom}
}

func (l *PDFLoader) Load(ctx context.Context, path string) ([]types.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := path
	if l.cropTop > 0 || l.cropBottom > 0 {
		workDir, err := os.MkdirTemp("", "ragchat-pdf-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(workDir)

		cropped := filepath.Join(workDir, "cropped.pdf")
		if err := RemoveHeaderFooterCrop(path, cropped, l.cropTop, l.cropBottom); err != nil {
			return nil, err
		}
		src = cropped
	}

	f, reader, err := pdf.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages, err := pageCount(reader)
	if err != nil {
		return nil, err
	}

	segs := make([]types.Segment, 0, pages)
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(reader, n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		if text == "" {
			continue
		}
		segs = append(segs, types.Segment{
			Text: text,
			Metadata: map[string]any{
				types.MetaFormat: "pdf",
				types.MetaPage:   n,
			},
		})
	}
	return segs, nil
}

// The pdf package panics on malformed objects; both helpers below turn that
// into an error for the file at hand.

func pageCount(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page tree: %v", rec)
		}
	}()
	return r.NumPage(), nil
}

func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed page: %v", rec)
		}
	}()

	p := r.Page(n)
	contents := p.V.Key("Contents")
	if contents.IsNull() {
		return "", nil
	}

	fonts := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		fonts[name] = p.Font(name).Encoder()
	}

	w := newPageWriter(fonts)
	w.box, w.cropped = cropBox(p)
	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		w.apply(op, args)
	})
	return w.text()
}

type rect struct {
	llx, lly, urx, ury float64
}

// cropBox looks the CropBox up the page tree, as it is inheritable.
func cropBox(p pdf.Page) (rect, bool) {
	v := p.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if b := v.Key("CropBox"); b.Kind() == pdf.Array && b.Len() == 4 {
			x0, y0 := b.Index(0).Float64(), b.Index(1).Float64()
			x1, y1 := b.Index(2).Float64(), b.Index(3).Float64()
			return rect{
				llx: math.Min(x0, x1), lly: math.Min(y0, y1),
				urx: math.Max(x0, x1), ury: math.Max(y0, y1),
			}, true
		}
		v = v.Key("Parent")
	}
	return rect{}, false
}

// affine is a PDF transformation matrix [a b c d e f].
type affine [6]float64

var identity = affine{1, 0, 0, 1, 0, 0}

func (m affine) mul(n affine) affine {
	return affine{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

const (
	// baseline shift, in points, that starts a new output line
	lineTolerance = 1.0
	// TJ adjustment, in thousandths of an em, read as a word gap
	wordGap = 200.0
)

// pageWriter follows the text state of one page closely enough to place
// line breaks and word gaps and to tell where each string lands.
type pageWriter struct {
	fonts map[string]pdf.TextEncoding
	enc   pdf.TextEncoding

	ctm     affine
	saved   []affine
	tm, tlm affine
	leading float64

	box     rect
	cropped bool

	out   strings.Builder
	shown bool
	moved bool
	lastY float64

	glyphs int
	bad    int
}

func newPageWriter(fonts map[string]pdf.TextEncoding) *pageWriter {
	return &pageWriter{fonts: fonts, ctm: identity, tm: identity, tlm: identity}
}

func (w *pageWriter) apply(op string, args []pdf.Value) {
	switch op {
	case "q":
		w.saved = append(w.saved, w.ctm)
	case "Q":
		if n := len(w.saved); n > 0 {
			w.ctm = w.saved[n-1]
			w.saved = w.saved[:n-1]
		}
	case "cm":
		if len(args) == 6 {
			w.ctm = matrixOf(args).mul(w.ctm)
		}
	case "BT":
		w.tm, w.tlm = identity, identity
		w.moved = true
	case "Tf":
		if len(args) == 2 {
			w.enc = w.fonts[args[0].Name()]
		}
	case "TL":
		w.leading = number(args, 0)
	case "Td":
		w.translate(number(args, 0), number(args, 1))
	case "TD":
		w.leading = -number(args, 1)
		w.translate(number(args, 0), number(args, 1))
	case "Tm":
		if len(args) == 6 {
			w.tm = matrixOf(args)
			w.tlm = w.tm
			w.moved = true
		}
	case "T*":
		w.translate(0, -w.leading)
	case "Tj":
		if len(args) == 1 {
			w.show(args[0].RawString())
		}
	case "'":
		w.translate(0, -w.leading)
		if len(args) == 1 {
			w.show(args[0].RawString())
		}
	case `"`:
		w.translate(0, -w.leading)
		if len(args) == 3 {
			w.show(args[2].RawString())
		}
	case "TJ":
		if len(args) != 1 {
			return
		}
		arr := args[0]
		for i := 0; i < arr.Len(); i++ {
			item := arr.Index(i)
			if item.Kind() == pdf.String {
				w.show(item.RawString())
			} else if item.Float64() <= -wordGap {
				w.moved = true
			}
		}
	}
}

func (w *pageWriter) translate(tx, ty float64) {
	w.tlm = affine{1, 0, 0, 1, tx, ty}.mul(w.tlm)
	w.tm = w.tlm
	w.moved = true
}

func (w *pageWriter) show(raw string) {
	if raw == "" {
		return
	}
	y := w.tm.mul(w.ctm)[5]
	if w.cropped && (y < w.box.lly || y > w.box.ury) {
		return
	}

	decoded := raw
	if w.enc != nil {
		decoded = w.enc.Decode(raw)
	}

	if w.shown {
		if math.Abs(y-w.lastY) > lineTolerance {
			w.out.WriteByte('\n')
		} else if w.moved {
			w.out.WriteByte(' ')
		}
	}
	w.shown, w.moved, w.lastY = true, false, y

	for _, r := range decoded {
		switch {
		case r == utf8.RuneError || r == 0:
			w.glyphs++
			w.bad++
		case unicode.IsSpace(r):
			w.out.WriteByte(' ')
		case unicode.IsControl(r):
			w.glyphs++
			w.bad++
		default:
			w.glyphs++
			w.out.WriteRune(r)
		}
	}
}

// text fails when most glyphs on the page had no Unicode mapping; a few
// stray codes are dropped.
func (w *pageWriter) text() (string, error) {
	if w.glyphs > 0 && w.bad*2 > w.glyphs {
		return "", ErrUndecodableText
	}
	return tidyLines(w.out.String()), nil
}

func matrixOf(args []pdf.Value) affine {
	var m affine
	for i := range m {
		m[i] = args[i].Float64()
	}
	return m
}

func number(args []pdf.Value, i int) float64 {
	if i >= len(args) {
		return 0
	}
	return args[i].Float64()
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
