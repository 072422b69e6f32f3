package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"plcwatch/internal/plc/models"
)

// maxLineBytes bounds a single exported record.
const maxLineBytes = 1 << 20

// LineError attaches the 1-based input line to a decode failure.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Reader decodes a JSON Lines export stream. A malformed line is reported
// by Next and the stream continues with the following line.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	raw     []byte
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: sc}
}

// Next returns the next record, io.EOF at the end of input, or a *LineError.
func (r *Reader) Next() (*models.ExportedOperation, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r.raw = line
		op, err := Decode(line)
		if err != nil {
			return nil, &LineError{Line: r.line, Err: err}
		}
		return op, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export stream: %w", err)
	}
	return nil, io.EOF
}

// Line is the number of the line most recently read.
func (r *Reader) Line() int {
	return r.line
}

// Raw returns the bytes of the line most recently returned by Next. The slice is
// only valid until the next call to Next.
func (r *Reader) Raw() []byte {
	return r.raw
}
