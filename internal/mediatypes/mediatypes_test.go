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

package mediatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	set, err := Parse("text/plain, image/*,Application/PDF")
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"application/pdf", "image/*", "text/plain"}, set.List())
}

func TestParseEmpty(t *testing.T) {
	set, err := Parse("")
	require.NoError(t, err)

	assert.Zero(t, set.Len())
	assert.Empty(t, set.String())
}

func TestParseInvalid(t *testing.T) {
	for _, list := range []string{
		"noslash",
		"too/many/slashes",
		"/plain",
		"text/",
	} {
		_, err := Parse(list)
		assert.ErrorIs(t, err, ErrInvalidMediaType, list)
	}
}

func TestContains(t *testing.T) {
	set, err := Parse("text/plain,image/*")
	require.NoError(t, err)

	assert.True(t, set.Contains("text/plain"))
	assert.True(t, set.Contains("TEXT/PLAIN"))
	assert.True(t, set.Contains("image/png"))
	assert.True(t, set.Contains("image/jpeg"))

	assert.False(t, set.Contains("text/html"))
	assert.False(t, set.Contains("audio/ogg"))
	assert.False(t, set.Contains("not-a-media-type"))
}

func TestAddRemove(t *testing.T) {
	set := NewSet()

	require.NoError(t, set.Add("video/mp4"))
	assert.True(t, set.Contains("video/mp4"))

	require.NoError(t, set.Remove("video/mp4"))
	assert.False(t, set.Contains("video/mp4"))
	assert.Zero(t, set.Len())

	// removing an absent entry is fine
	require.NoError(t, set.Remove("video/mp4"))
}

func TestClone(t *testing.T) {
	set, err := Parse("text/plain")
	require.NoError(t, err)

	clone := set.Clone()
	require.NoError(t, clone.Add("image/*"))

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestString(t *testing.T) {
	set, err := Parse("image/*,text/plain")
	require.NoError(t, err)

	assert.Equal(t, "image/*,text/plain", set.String())
}
