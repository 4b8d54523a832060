package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// assign stores value into the option's ConfigKey, which must be a *T.
func assign[T any](co *config.ConfigOption, value T) error {
	key, ok := co.ConfigKey.(*T)
	if !ok {
		return fmt.Errorf("the config key for %s is a %T, expected a %T", co.Name, co.ConfigKey, (*T)(nil))
	}
	*key = value
	return nil
}

func SetConfigOptionMetricType(co *config.ConfigOption) error {
	metricType, err := monitor.ParseMetricType(viper.GetString(co.Name))
	if err != nil {
		return fmt.Errorf("couldn't parse metric type: %w", err)
	}
	return assign(co, metricType)
}

func SetConfigOptionCrashTrackerType(co *config.ConfigOption) error {
	crashTrackerType, err := crashtracker.ParseCrashTrackerType(viper.GetString(co.Name))
	if err != nil {
		return fmt.Errorf("couldn't parse crash tracker type: %w", err)
	}
	return assign(co, crashTrackerType)
}

// SetConfigOptionLogLevel also applies the level to the default logger, so
// flags parsed after this one already log at the requested level.
func SetConfigOptionLogLevel(co *config.ConfigOption) error {
	logLevel, err := logrus.ParseLevel(viper.GetString(co.Name))
	if err != nil {
		return fmt.Errorf("couldn't parse log level: %w", err)
	}
	if err = assign(co, logLevel); err != nil {
		return err
	}

	if config.IsExplicitlySet(co) {
		log.Debugf("Setting log level to: %q", logLevel)
		log.DefaultLogger.SetLevel(logLevel)
	} else {
		log.Debugf("Using default log level: %q", logLevel)
	}
	return nil
}

// SetConfigOptionFloat64 parses the option as a float64. Rate and
// credit-amount flags are declared as string flags and go through this
// setter.
func SetConfigOptionFloat64(co *config.ConfigOption) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(viper.GetString(co.Name)), 64)
	if err != nil {
		return fmt.Errorf("couldn't parse %s as a number: %w", co.Name, err)
	}
	return assign(co, value)
}

// SetCorsAllowedOrigins splits the comma-separated origin list and validates
// that each entry parses as a URL.
func SetCorsAllowedOrigins(co *config.ConfigOption) error {
	raw := viper.GetString(co.Name)
	if raw == "" {
		return fmt.Errorf("cors allowed addresses cannot be empty")
	}

	corsAllowedOrigins := utils.MapSlice(strings.Split(raw, ","), strings.TrimSpace)
	for _, address := range corsAllowedOrigins {
		if _, err := url.ParseRequestURI(address); err != nil {
			return fmt.Errorf("error parsing cors addresses: %w", err)
		}
		if address == "*" {
			log.Warn(`The value "*" for the CORS Allowed Origins is too permissive and not recommended.`)
		}
	}
	return assign(co, corsAllowedOrigins)
}
