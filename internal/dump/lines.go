package dump

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// LineReader yields raw lines, line endings included, so they can be copied byte for byte.
type LineReader struct {
	br   *bufio.Reader
	line int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next raw line. It returns io.EOF once no bytes remain.
func (r *LineReader) Next() (string, error) {
	s, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if s == "" {
				return "", io.EOF
			}
			r.line++
			return s, nil
		}
		return "", err
	}
	r.line++
	return s, nil
}

// Line returns the 1-based number of the last line returned by Next.
func (r *LineReader) Line() int {
	return r.line
}

// TrimEOL strips a trailing "\n" or "\r\n".
func TrimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// CountLines counts lines and bytes in r.
func CountLines(r io.Reader) (lines int, size int64, err error) {
	lr := NewLineReader(r)
	for {
		s, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return lines, size, nil
		}
		if err != nil {
			return lines, size, err
		}
		lines++
		size += int64(len(s))
	}
}
