// Copyright (C) 2025  The popfilter authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package textproto

import (
	"bufio"
	"io"
)

// dotReader decodes a byte-stuffed multi-line block one line at a time.
// Leading dots are unstuffed, line endings come out as <CR> <LF> and the
// lone dot line ends the block with io.EOF.
type dotReader struct {
	r *reader

	buf     []byte
	pending []byte
	done    bool
}

// fill decodes the next body line into the pending window. A terminator
// line, and every call after it, reports io.EOF.
func (d *dotReader) fill() error {
	if d.done {
		return io.EOF
	}

	line, err := d.r.ReadLine()
	if err != nil {
		return err
	}

	if isTerminatorLine(line) {
		d.done = true
		return io.EOF
	}

	if len(line) > 0 && line[0] == '.' {
		line = line[1:]
	}

	d.buf = append(d.buf[:0], line...)
	d.buf = append(d.buf, '\r', '\n')
	d.pending = d.buf

	return nil
}

func (d *dotReader) Read(b []byte) (int, error) {
	var n int

	for n < len(b) {
		if len(d.pending) == 0 {
			if err := d.fill(); err != nil {
				if n > 0 && err == io.EOF {
					return n, nil
				}

				return n, err
			}
		}

		m := copy(b[n:], d.pending)
		d.pending = d.pending[m:]
		n += m
	}

	return n, nil
}

func isTerminatorLine(line []byte) bool {
	return len(line) == 1 && line[0] == '.'
}

// dotWriter byte-stuffs a stream of text lines. Lines may arrive split
// across writes; bare <LF> endings are normalized to <CR> <LF>. Closing
// finishes a dangling line and always emits the terminator.
type dotWriter struct {
	w *bufio.Writer

	bol bool // the next byte starts a line
	cr  bool // the previous byte was <CR>
}

func newDotWriter(w *bufio.Writer) *dotWriter {
	return &dotWriter{w: w, bol: true}
}

func (d *dotWriter) Write(b []byte) (int, error) {
	for i, c := range b {
		var err error

		// nolint:errcheck
		if c == '\n' {
			if !d.cr {
				d.w.WriteByte('\r')
			}

			err = d.w.WriteByte('\n')
			d.bol = true
			d.cr = false
		} else {
			if d.bol && c == '.' {
				d.w.WriteByte('.')
			}

			err = d.w.WriteByte(c)
			d.bol = false
			d.cr = c == '\r'
		}

		if err != nil {
			return i, err
		}
	}

	return len(b), nil
}

func (d *dotWriter) Close() error {
	// nolint:errcheck
	if !d.bol {
		if !d.cr {
			d.w.WriteByte('\r')
		}

		d.w.WriteByte('\n')
	}

	_, err := d.w.WriteString(".\r\n")
	return err
}
