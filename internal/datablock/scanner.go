// Package datablock separates visible assistant text from the structured
// data block the model embeds between <<JSON>> and <<ENDJSON>> markers.
package datablock

import "strings"

// Block markers. Matching is exact and case-sensitive.
const (
	Start = "<<JSON>>"
	End   = "<<ENDJSON>>"
)

// Scanner is an incremental filter over a streamed message. It is stateful
// across the whole message: a marker may be split across any fragment
// boundary and a message may contain several blocks.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	buf    string
	inside bool
}

// NewScanner returns a scanner positioned outside any block.
func NewScanner() *Scanner {
	return &Scanner{}
}

// InsideBlock reports whether the scanner is currently suppressing a block.
func (s *Scanner) InsideBlock() bool {
	return s.inside
}

// Feed consumes one fragment and returns the visible parts it released,
// in order. Text that might still turn out to be the start of a marker is
// held back until the next fragment or Flush.
func (s *Scanner) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	s.buf += fragment

	var visible []string
	for s.buf != "" {
		if !s.inside {
			if i := strings.Index(s.buf, Start); i >= 0 {
				if i > 0 {
					visible = append(visible, s.buf[:i])
				}
				s.buf = s.buf[i+len(Start):]
				s.inside = true
				continue
			}
			hold := partialSuffix(s.buf, Start)
			if emit := s.buf[:len(s.buf)-hold]; emit != "" {
				visible = append(visible, emit)
			}
			s.buf = s.buf[len(s.buf)-hold:]
			break
		}

		if i := strings.Index(s.buf, End); i >= 0 {
			s.buf = s.buf[i+len(End):]
			s.inside = false
			continue
		}
		// Suppressed content is dropped; only a possible partial End survives.
		if len(s.buf) >= len(End) {
			s.buf = s.buf[len(s.buf)-(len(End)-1):]
		}
		break
	}
	return visible
}

// Flush ends the message. It returns the held-back visible remainder, or ""
// when the message ended inside an unterminated block.
func (s *Scanner) Flush() string {
	rest := s.buf
	inside := s.inside
	s.buf = ""
	s.inside = false
	if inside {
		return ""
	}
	return rest
}

// partialSuffix returns the length of the longest suffix of buf that is a
// proper prefix of marker.
func partialSuffix(buf, marker string) int {
	n := len(marker) - 1
	if len(buf) < n {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(buf, marker[:n]) {
			return n
		}
	}
	return 0
}
