package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Mode selects which representation of the document is sent to the engine.
type Mode string

// Supported modes.
const (
	ModeText        Mode = "text"        // extracted page text only
	ModeScreenshots Mode = "screenshots" // page images only
	ModeBoth        Mode = "both"        // page text and page images
	ModeDocument    Mode = "document"    // the raw PDF as a document block
)

// Modes lists every supported mode.
var Modes = []Mode{ModeText, ModeScreenshots, ModeBoth, ModeDocument}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", eris.Errorf("pipeline: unknown mode %q (want text, screenshots, both or document)", s)
}

// WantsText reports whether the mode sends extracted page text.
func (m Mode) WantsText() bool { return m == ModeText || m == ModeBoth }

// WantsScreenshots reports whether the mode sends page images.
func (m Mode) WantsScreenshots() bool { return m == ModeScreenshots || m == ModeBoth }
