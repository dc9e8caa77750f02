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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/log"
)

const usageText = `
Usage:
  popfilter [OPTIONS]

  Transparent POP3 proxy with external mail filtering.

Version:
  %s

Options:
%s
`

func main() {
	var configFilename string

	flags := pflag.NewFlagSet("popfilter", pflag.ContinueOnError)
	flags.StringVarP(&configFilename, "config", "c", "", "Path to a configuration file")
	flags.String("origin", "", "Origin POP3 server host")
	flags.Int("origin-port", 110, "Origin POP3 server port")
	flags.String("listen", "0.0.0.0", "Address to accept POP3 clients on")
	flags.Int("port", 1110, "Port to accept POP3 clients on")
	flags.Usage = printUsage(flags)

	if err := flags.Parse(os.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		log.Fatal().Err(err).Msg("could not parse flags")
	}

	config.Defaults()
	setupConfig(configFilename)
	bindFlags(flags)
	setupLogger()
	printConfig()

	cmd, err := newStartCommand()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize the application")
	}

	if err := cmd.run(); err != nil {
		log.Fatal().Err(err).Msg("proxy terminated")
	}
}

func printUsage(flags *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, usageText,
			config.Version,
			flags.FlagUsages())
	}
}

func setupLogger() {
	if err := log.SetLevel(viper.GetString("log.level")); err != nil {
		log.Fatal().Err(err).Msg("unknown log level")
	}
}

func setupConfig(filename string) {
	viper.SetTypeByDefaultValue(true)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("POPFILTER")

	if filename != "" {
		readConfig(filename)
	} else {
		log.Info().Msg("no config file provided. using environment only")
	}
}

func bindFlags(flags *pflag.FlagSet) {
	viper.BindPFlag("origin.host", flags.Lookup("origin"))
	viper.BindPFlag("origin.port", flags.Lookup("origin-port"))
	viper.BindPFlag("listen.address", flags.Lookup("listen"))
	viper.BindPFlag("listen.port", flags.Lookup("port"))
}

func readConfig(filename string) {
	log.Info().
		Str("filename", filename).
		Msg("loading configuration")

	viper.SetConfigFile(filename)

	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Warn().Err(err).Msg("configuration file missing")
		} else {
			log.Fatal().Err(err).Msg("could not load configuration")
		}
	}
}

func printConfig() {
	keys := viper.AllKeys()
	sort.Strings(keys)

	for _, key := range keys {
		v, _ := json.Marshal(viper.Get(key))
		log.Debug().Msgf("%s = %s", key, v)
	}
}
