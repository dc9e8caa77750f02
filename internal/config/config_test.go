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

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupViper(t *testing.T) {
	t.Helper()

	viper.Reset()
	Defaults()

	t.Cleanup(viper.Reset)
}

func TestFromViperRequiresOrigin(t *testing.T) {
	setupViper(t)

	_, err := FromViper()
	assert.ErrorIs(t, err, ErrNoOrigin)
}

func TestFromViper(t *testing.T) {
	setupViper(t)

	viper.Set("origin.host", "pop.example.org")
	viper.Set("listen.port", 2110)

	settings, err := FromViper()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:2110", settings.ListenAddr)
	assert.Equal(t, "pop.example.org", settings.OriginHost)
	assert.EqualValues(t, 110, settings.OriginPort)
	assert.Equal(t, "127.0.0.1:9090", settings.ManagementAddr)
	assert.Equal(t, "admin", settings.ManagementUser)
	assert.Equal(t, 5*time.Minute, settings.IdleTimeout)
}

func TestRuntimeFromViper(t *testing.T) {
	setupViper(t)

	viper.Set("filter.enabled", true)
	viper.Set("filter.command", "stripmime")
	viper.Set("filter.media", "image/*,text/html")

	runtime, err := RuntimeFromViper()
	require.NoError(t, err)

	enabled, command := runtime.Filter()
	assert.True(t, enabled)
	assert.Equal(t, "stripmime", command)
	assert.Equal(t, []string{"image/*", "text/html"}, runtime.ListMediaTypes())
}

func TestRuntimeFromViperInvalidMedia(t *testing.T) {
	setupViper(t)

	viper.Set("filter.media", "not-a-media-type")

	_, err := RuntimeFromViper()
	assert.Error(t, err)
}

func TestRuntimeToggleFilter(t *testing.T) {
	runtime := NewRuntime(false, "cat", "gone", nil)

	assert.True(t, runtime.ToggleFilter())
	assert.False(t, runtime.ToggleFilter())
	assert.True(t, runtime.ToggleFilter())

	enabled, command := runtime.Filter()
	assert.True(t, enabled)
	assert.Equal(t, "cat", command)
}

func TestRuntimeMediaTypes(t *testing.T) {
	runtime := NewRuntime(false, "", "", nil)

	require.NoError(t, runtime.BanMediaType("image/*"))
	require.NoError(t, runtime.BanMediaType("text/html"))
	assert.Equal(t, []string{"image/*", "text/html"}, runtime.ListMediaTypes())

	require.NoError(t, runtime.UnbanMediaType("text/html"))
	assert.Equal(t, []string{"image/*"}, runtime.ListMediaTypes())

	// the returned set is a copy and detached from the runtime record
	media := runtime.MediaTypes()
	require.NoError(t, media.Add("audio/ogg"))
	assert.Equal(t, []string{"image/*"}, runtime.ListMediaTypes())
}

func TestRuntimeReplacementMessage(t *testing.T) {
	runtime := NewRuntime(false, "", "original", nil)

	assert.Equal(t, "original", runtime.ReplacementMessage())

	runtime.SetReplacementMessage("changed")
	assert.Equal(t, "changed", runtime.ReplacementMessage())
}
