// Package evidence assembles the ordered multimodal payload sent to the
// analysis engine for one policy invocation.
package evidence

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register decoder
)

// Section labels placed in front of the text and image evidence.
const (
	TextLabel  = "\n\n--- PDF Text Content ---\n"
	ImageLabel = "\n\n--- PDF Page Images ---\n"
)

// PDFMIMEType is the media type attached to raw document segments.
const PDFMIMEType = "application/pdf"

var (
	// ErrEmptyEvidence means no requested modality produced any content.
	ErrEmptyEvidence = eris.New("evidence: no usable input (no document bytes, text, or images)")
	// ErrConflictingModes means raw document bytes were combined with text or images.
	ErrConflictingModes = eris.New("evidence: raw document cannot be combined with text or images")
)

// Kind identifies a segment type.
type Kind int

// Segment kinds, in the order they appear in a payload.
const (
	KindInstruction Kind = iota // policy prompt, always first
	KindDocument                // raw PDF bytes
	KindLabel                   // section heading before text or images
	KindText                    // extracted page text
	KindImage                   // one page image
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindDocument:
		return "document"
	case KindLabel:
		return "label"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Segment is one typed part of a payload. Text is set for instruction,
// label and text segments; Data and MIMEType for document and image segments.
type Segment struct {
	Kind     Kind
	Text     string
	Data     []byte
	MIMEType string
	Name     string
}

// Payload is an immutable ordered list of segments.
type Payload struct {
	segments []Segment
}

// Input selects what goes into a payload. Document is exclusive with Text
// and ImagePaths.
type Input struct {
	Prompt     string
	Document   []byte
	Text       string
	ImagePaths []string
}

// Assemble builds a payload in the fixed order instruction, document, text
// section, image section. Images that fail to load are logged and skipped.
func Assemble(in Input) (*Payload, error) {
	if len(in.Document) > 0 && (in.Text != "" || len(in.ImagePaths) > 0) {
		return nil, ErrConflictingModes
	}

	segs := []Segment{{Kind: KindInstruction, Text: in.Prompt}}
	var evidenceCount int

	if len(in.Document) > 0 {
		segs = append(segs, Segment{Kind: KindDocument, Data: in.Document, MIMEType: PDFMIMEType})
		evidenceCount++
	}

	if in.Text != "" {
		segs = append(segs,
			Segment{Kind: KindLabel, Text: TextLabel},
			Segment{Kind: KindText, Text: in.Text},
		)
		evidenceCount++
	}

	images := loadImages(in.ImagePaths)
	if len(images) > 0 {
		segs = append(segs, Segment{Kind: KindLabel, Text: ImageLabel})
		segs = append(segs, images...)
		evidenceCount += len(images)
	}

	if evidenceCount == 0 {
		return nil, ErrEmptyEvidence
	}

	return &Payload{segments: segs}, nil
}

func loadImages(paths []string) []Segment {
	if len(paths) == 0 {
		return nil
	}

	log := zap.L()
	log.Info("evidence: loading page images", zap.Int("count", len(paths)))

	out := make([]Segment, 0, len(paths))
	for _, p := range paths {
		seg, err := loadImage(p)
		if err != nil {
			log.Warn("evidence: skipping image", zap.String("path", p), zap.Error(err))
			continue
		}
		log.Debug("evidence: added image",
			zap.String("path", p),
			zap.String("mime", seg.MIMEType),
			zap.Int("bytes", len(seg.Data)),
		)
		out = append(out, seg)
	}

	log.Info("evidence: image loading complete",
		zap.Int("loaded", len(out)),
		zap.Int("skipped", len(paths)-len(out)),
	)
	return out
}

func loadImage(path string) (Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Segment{}, eris.Wrapf(err, "evidence: read image %s", path)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Segment{}, eris.Wrapf(err, "evidence: decode image %s", path)
	}
	return Segment{
		Kind:     KindImage,
		Data:     data,
		MIMEType: "image/" + format,
		Name:     filepath.Base(path),
	}, nil
}

// WithInstruction returns a payload carrying prompt in place of the current
// instruction and sharing the evidence segments.
func (p *Payload) WithInstruction(prompt string) *Payload {
	segs := make([]Segment, len(p.segments))
	copy(segs, p.segments)
	segs[0] = Segment{Kind: KindInstruction, Text: prompt}
	return &Payload{segments: segs}
}

// Segments returns a copy of the segment list.
func (p *Payload) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Instruction returns the instruction text.
func (p *Payload) Instruction() string {
	return p.segments[0].Text
}

// Count returns the number of segments of kind k.
func (p *Payload) Count(k Kind) int {
	var n int
	for _, s := range p.segments {
		if s.Kind == k {
			n++
		}
	}
	return n
}

// Size returns the total bytes of text and binary content in the payload.
func (p *Payload) Size() int {
	var n int
	for _, s := range p.segments {
		n += len(s.Data) + len(s.Text)
	}
	return n
}
