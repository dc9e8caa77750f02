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

// Stripmime is a mail filter intended to be run by the proxy. It reads a
// complete mail from stdin, substitutes the body of every part whose
// Content-Type is listed in FILTER_MEDIAS with the text in FILTER_MSG and
// writes the resulting mail to stdout.
package main

import (
	"io"
	"os"
	"strings"

	"github.com/emersion/go-message"

	"github.com/popfilter/popfilter/internal/log"
	"github.com/popfilter/popfilter/internal/mediatypes"
)

func main() {
	media, err := mediatypes.Parse(os.Getenv("FILTER_MEDIAS"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid FILTER_MEDIAS")
	}

	filter := filter{
		media:       media,
		replacement: os.Getenv("FILTER_MSG"),
	}

	if err := filter.run(os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("could not rewrite mail")
	}
}

type filter struct {
	media       *mediatypes.Set
	replacement string
}

func (f *filter) run(r io.Reader, w io.Writer) error {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return err
	}

	writer, err := message.CreateWriter(w, entity.Header)
	if err != nil {
		return err
	}

	if err := f.rewrite(writer, entity); err != nil {
		return err
	}

	return writer.Close()
}

// rewrite copies an entity into the writer, descending into multipart
// containers and replacing the bodies of matching leaves.
func (f *filter) rewrite(w *message.Writer, entity *message.Entity) error {
	mediaType, _, _ := entity.Header.ContentType()

	if multipart := entity.MultipartReader(); multipart != nil {
		for {
			part, err := multipart.NextPart()
			if err == io.EOF {
				return nil
			}

			if err != nil {
				return err
			}

			partWriter, err := w.CreatePart(part.Header)
			if err != nil {
				return err
			}

			if err := f.rewrite(partWriter, part); err != nil {
				return err
			}

			if err := partWriter.Close(); err != nil {
				return err
			}
		}
	}

	if f.media.Contains(mediaType) {
		_, err := io.Copy(w, strings.NewReader(f.replacement))
		return err
	}

	_, err := io.Copy(w, entity.Body)

	return err
}
