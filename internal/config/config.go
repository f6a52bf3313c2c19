// Package config parses the daemon's command-line surface (spec.md §6.1
// supplement: TTY path, metrics listener, log verbosity).
package config

import (
	"flag"

	"github.com/sirupsen/logrus"
)

// Config holds poolbusd's runtime configuration.
type Config struct {
	TTYPath      string
	MetricsAddr  string
	RegistrySize int
	LogLevel     logrus.Level
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("poolbusd", flag.ContinueOnError)

	tty := fs.String("tty", "/dev/ttyS0", "path to the RS-485 TTY device")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9100 (disabled if empty)")
	registrySize := fs.Int("registry-size", 16, "number of slave slots in the registry")
	logLevel := fs.String("log-level", "info", "log level: trace, debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return nil, err
	}

	return &Config{
		TTYPath:      *tty,
		MetricsAddr:  *metricsAddr,
		RegistrySize: *registrySize,
		LogLevel:     level,
	}, nil
}
