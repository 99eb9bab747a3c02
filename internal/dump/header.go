package dump

// Literal markers of the DT5202 text dump format.
const (
	HeaderDelimiter = "//************************************************"
	FrameDivider    = "----------------------------------"
	ProvenanceLine  = "// This is fixed data file generated by DT5202 Data Fixer"
	boardMarker     = "Board"
	trgIDMarker     = "TrgID"
	timestampMarker = "TS"
	chSectionMarker = "CH"
)

// HeaderEvent classifies a line seen by a HeaderSkipper.
type HeaderEvent int

const (
	// HeaderBody means the header is closed and the line belongs to the body.
	HeaderBody HeaderEvent = iota
	// HeaderPreamble is a line before the opening delimiter.
	HeaderPreamble
	// HeaderOpen is the opening delimiter.
	HeaderOpen
	// HeaderMeta is a metadata line between the delimiters.
	HeaderMeta
	// HeaderClose is the closing delimiter.
	HeaderClose
)

// HeaderSkipper tracks the header region bounded by two delimiter lines.
type HeaderSkipper struct {
	found  bool
	closed bool
}

// Observe classifies the next raw line.
func (h *HeaderSkipper) Observe(line string) HeaderEvent {
	if h.closed {
		return HeaderBody
	}
	isDelim := TrimEOL(line) == HeaderDelimiter
	if !h.found {
		if isDelim {
			h.found = true
			return HeaderOpen
		}
		return HeaderPreamble
	}
	if isDelim {
		h.closed = true
		return HeaderClose
	}
	return HeaderMeta
}

// Found reports whether the opening delimiter was seen.
func (h *HeaderSkipper) Found() bool {
	return h.found
}

// Closed reports whether the closing delimiter was seen.
func (h *HeaderSkipper) Closed() bool {
	return h.closed
}
