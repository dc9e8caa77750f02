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
	"sync"

	"github.com/spf13/viper"

	"github.com/popfilter/popfilter/internal/mediatypes"
)

// Runtime are the settings the management channel may change while the
// proxy is serving sessions. Sessions read and management writes on
// different goroutines, so every access goes through the mutex.
type Runtime struct {
	mu sync.RWMutex

	filterEnabled  bool
	filterCommand  string
	replacementMsg string
	media          *mediatypes.Set
}

// NewRuntime builds a runtime record from explicit values.
func NewRuntime(enabled bool, command, replacement string, media *mediatypes.Set) *Runtime {
	if media == nil {
		media = mediatypes.NewSet()
	}

	return &Runtime{
		filterEnabled:  enabled,
		filterCommand:  command,
		replacementMsg: replacement,
		media:          media,
	}
}

// RuntimeFromViper assembles the initial runtime record from the global
// viper instance.
func RuntimeFromViper() (*Runtime, error) {
	media, err := mediatypes.Parse(viper.GetString("filter.media"))
	if err != nil {
		return nil, err
	}

	return NewRuntime(
		viper.GetBool("filter.enabled"),
		viper.GetString("filter.command"),
		viper.GetString("filter.message"),
		media,
	), nil
}

// Filter returns whether message filtering is active and the shell command
// to run. Both values are read under a single lock, so a toggle cannot
// interleave between them.
func (r *Runtime) Filter() (enabled bool, command string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterEnabled, r.filterCommand
}

// ToggleFilter flips the filter activation and returns the new state.
func (r *Runtime) ToggleFilter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filterEnabled = !r.filterEnabled
	return r.filterEnabled
}

// SetFilterCommand replaces the shell command of the external filter.
func (r *Runtime) SetFilterCommand(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filterCommand = command
}

// ReplacementMessage returns the text substituted for filtered parts.
func (r *Runtime) ReplacementMessage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.replacementMsg
}

// SetReplacementMessage replaces the text substituted for filtered parts.
func (r *Runtime) SetReplacementMessage(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.replacementMsg = message
}

// MediaTypes returns a copy of the filtered media type set.
func (r *Runtime) MediaTypes() *mediatypes.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.media.Clone()
}

// BanMediaType adds a media type to the filtered set.
func (r *Runtime) BanMediaType(mediaType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.media.Add(mediaType)
}

// UnbanMediaType removes a media type from the filtered set.
func (r *Runtime) UnbanMediaType(mediaType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.media.Remove(mediaType)
}

// ListMediaTypes returns the filtered media types in lexical order.
func (r *Runtime) ListMediaTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.media.List()
}
