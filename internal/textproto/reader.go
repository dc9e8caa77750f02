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
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned by ReadLine when a line does not fit into the
// read buffer. The remainder of the line is consumed and discarded.
var ErrLineTooLong = errors.New("textproto: line too long")

// readBufferSize bounds the length of a single protocol line.
const readBufferSize = 2048

// Reader is a buffered reader for line based protocols. Raw reads and line
// reads may be interleaved, which is required when a single reply consists
// of a status line followed by a byte-stuffed body.
type Reader interface {
	io.Reader

	// ReadLine returns the next line without its ending. Both <CR> <LF> and
	// a bare <LF> are accepted. The returned slice is only valid until the
	// next read.
	ReadLine() ([]byte, error)

	// Buffered returns the number of bytes already held in the buffer.
	Buffered() int

	// DotReader returns an io.Reader that decodes a dot-encoded sequence of
	// lines and terminates at the final dot line.
	DotReader() io.Reader
}

type reader struct {
	buffer *bufio.Reader
}

func newReader(r io.Reader) *reader {
	return &reader{
		buffer: bufio.NewReaderSize(r, readBufferSize),
	}
}

func (r *reader) Read(b []byte) (int, error) {
	return r.buffer.Read(b)
}

func (r *reader) Buffered() int {
	return r.buffer.Buffered()
}

func (r *reader) ReadLine() ([]byte, error) {
	line, err := r.buffer.ReadSlice('\n')

	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.buffer.ReadSlice('\n')
		}

		if err != nil {
			return nil, err
		}

		return nil, ErrLineTooLong
	}

	if err != nil {
		return nil, err
	}

	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})

	return line, nil
}

func (r *reader) DotReader() io.Reader {
	return &dotReader{r: r}
}
