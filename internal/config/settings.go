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

// Package config holds the viper backed settings of the proxy and the
// runtime record that the management channel may change while sessions are
// running.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Version is the proxy version exposed to filter programs via the
// POP3_FILTER_VERSION environment variable.
const Version = "1.0.0"

// ErrNoOrigin is returned when no origin server is configured.
var ErrNoOrigin = errors.New("config: origin.host must be set")

// Defaults registers the default values for every setting.
func Defaults() {
	viper.SetDefault("listen.address", "0.0.0.0")
	viper.SetDefault("listen.port", 1110)

	viper.SetDefault("origin.host", "")
	viper.SetDefault("origin.port", 110)

	viper.SetDefault("management.address", "127.0.0.1")
	viper.SetDefault("management.port", 9090)
	viper.SetDefault("management.user", "admin")
	viper.SetDefault("management.pass", "admin")

	viper.SetDefault("filter.enabled", false)
	viper.SetDefault("filter.command", "")
	viper.SetDefault("filter.message", "Part replaced.")
	viper.SetDefault("filter.media", "")
	viper.SetDefault("filter.errorfile", os.DevNull)

	viper.SetDefault("metrics.address", "")

	viper.SetDefault("timeout.idle", 5*time.Minute)
	viper.SetDefault("log.level", "info")
}

// Settings are the immutable parts of the configuration, fixed at startup.
type Settings struct {
	ListenAddr     string
	OriginHost     string
	OriginPort     uint16
	ManagementAddr string
	ManagementUser string
	ManagementPass string
	MetricsAddr    string
	ErrorFile      string
	IdleTimeout    time.Duration
}

// FromViper assembles Settings from the global viper instance.
func FromViper() (*Settings, error) {
	originHost := viper.GetString("origin.host")
	if originHost == "" {
		return nil, ErrNoOrigin
	}

	return &Settings{
		ListenAddr: joinHostPort(
			viper.GetString("listen.address"),
			viper.GetInt("listen.port")),
		OriginHost: originHost,
		OriginPort: uint16(viper.GetInt("origin.port")),
		ManagementAddr: joinHostPort(
			viper.GetString("management.address"),
			viper.GetInt("management.port")),
		ManagementUser: viper.GetString("management.user"),
		ManagementPass: viper.GetString("management.pass"),
		MetricsAddr:    viper.GetString("metrics.address"),
		ErrorFile:      viper.GetString("filter.errorfile"),
		IdleTimeout:    viper.GetDuration("timeout.idle"),
	}, nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
