package runner

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// Kind is how the runner treats a gist file
type Kind int

const (
	KindOther Kind = iota
	KindJS
	KindHTML
	KindCSS
)

func (k Kind) String() string {
	switch k {
	case KindJS:
		return "js"
	case KindHTML:
		return "html"
	case KindCSS:
		return "css"
	}
	return "other"
}

var kindPatterns = []struct {
	pattern string
	kind    Kind
}{
	{"**/*.{js,mjs,cjs}", KindJS},
	{"**/*.{html,htm}", KindHTML},
	{"**/*.css", KindCSS},
}

// Classify decides the kind of f from its name, falling back to sniffing
// the content when the name says nothing.
func Classify(f protocol.File) Kind {
	name := strings.ToLower(f.Name)
	for _, p := range kindPatterns {
		if ok, _ := doublestar.Match(p.pattern, name); ok {
			return p.kind
		}
	}

	if strings.TrimSpace(f.Content) == "" {
		return KindOther
	}
	mt := mimetype.Detect([]byte(f.Content))
	for ; mt != nil; mt = mt.Parent() {
		switch {
		case mt.Is("text/html"):
			return KindHTML
		case mt.Is("text/javascript"), mt.Is("application/javascript"):
			return KindJS
		}
	}
	return KindOther
}

// Files groups the gist's files by kind, keeping gist order
type Files struct {
	JS   []protocol.File
	HTML []protocol.File
	CSS  []protocol.File
}

// Split classifies every file in g
func Split(g protocol.Gist) Files {
	var out Files
	for _, f := range g.Files {
		switch Classify(f) {
		case KindJS:
			out.JS = append(out.JS, f)
		case KindHTML:
			out.HTML = append(out.HTML, f)
		case KindCSS:
			out.CSS = append(out.CSS, f)
		}
	}
	return out
}
