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

// Package mediatypes implements a set of mime media types with support for
// wildcard subtypes. "image/*" matches every image subtype, while a concrete
// entry like "image/png" matches only itself. Comparisons are
// case-insensitive.
package mediatypes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidMediaType is returned when a media type is not of the form
// "type/subtype".
var ErrInvalidMediaType = errors.New("mediatypes: invalid media type")

// Wildcard matches every subtype of a type.
const Wildcard = "*"

// Set holds a collection of media types. A Set is not safe for concurrent
// use and is expected to be guarded by its owner.
type Set struct {
	types map[string]map[string]bool
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		types: make(map[string]map[string]bool),
	}
}

// Parse builds a Set from a comma separated list of media types.
// An empty list yields an empty Set.
func Parse(list string) (*Set, error) {
	set := NewSet()

	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if err := set.Add(entry); err != nil {
			return nil, err
		}
	}

	return set, nil
}

func split(mediaType string) (string, string, error) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	typ, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || typ == "" || subtype == "" || strings.Contains(subtype, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMediaType, mediaType)
	}

	return typ, subtype, nil
}

// Add inserts a media type of the form "type/subtype" or "type/*".
func (s *Set) Add(mediaType string) error {
	typ, subtype, err := split(mediaType)
	if err != nil {
		return err
	}

	subtypes, ok := s.types[typ]
	if !ok {
		subtypes = make(map[string]bool)
		s.types[typ] = subtypes
	}

	subtypes[subtype] = true
	return nil
}

// Remove deletes a media type from the set. Removing an entry that is not
// present is not an error.
func (s *Set) Remove(mediaType string) error {
	typ, subtype, err := split(mediaType)
	if err != nil {
		return err
	}

	subtypes, ok := s.types[typ]
	if !ok {
		return nil
	}

	delete(subtypes, subtype)

	if len(subtypes) == 0 {
		delete(s.types, typ)
	}

	return nil
}

// Contains reports whether a concrete media type matches the set, honoring
// wildcard subtypes.
func (s *Set) Contains(mediaType string) bool {
	typ, subtype, err := split(mediaType)
	if err != nil {
		return false
	}

	subtypes, ok := s.types[typ]
	if !ok {
		return false
	}

	return subtypes[Wildcard] || subtypes[subtype]
}

// Len returns the number of entries in the set.
func (s *Set) Len() int {
	var n int

	for _, subtypes := range s.types {
		n += len(subtypes)
	}

	return n
}

// List returns all entries in lexical order.
func (s *Set) List() []string {
	entries := make([]string, 0, s.Len())

	for typ, subtypes := range s.types {
		for subtype := range subtypes {
			entries = append(entries, typ+"/"+subtype)
		}
	}

	sort.Strings(entries)
	return entries
}

// String returns the set as a comma separated list, the same form Parse
// accepts.
func (s *Set) String() string {
	return strings.Join(s.List(), ",")
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	clone := NewSet()

	for typ, subtypes := range s.types {
		cloned := make(map[string]bool, len(subtypes))
		for subtype := range subtypes {
			cloned[subtype] = true
		}

		clone.types[typ] = cloned
	}

	return clone
}
