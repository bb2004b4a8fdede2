// Package config holds the server's runtime settings and the pflag
// bindings that populate them, grounded on leftmike-maho.v1's
// cmd package (mahoCmd's persistent flags / startCmd's server flags),
// adapted from that package's global vars into an instance the caller
// constructs and owns.
package config

import (
	"github.com/spf13/pflag"
)

// Config is every knob the server and CLI need at startup.
type Config struct {
	DataDir           string
	ListenAddr        string
	PageCacheCapacity int
	WorkerPoolSize    int

	LogLevel  string
	LogStderr bool
}

// Default returns the out-of-the-box settings, matching the teacher's
// pattern of package-level defaults assigned before flag registration.
func Default() *Config {
	return &Config{
		DataDir:           "godb-data",
		ListenAddr:        "localhost:7777",
		PageCacheCapacity: 1 << 16,
		WorkerPoolSize:    32,
		LogLevel:          "info",
		LogStderr:         true,
	}
}

// BindFlags registers cfg's fields onto fs, following mahoCmd's
// fs.StringVar(&field, name, field, usage) idiom.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "`directory` holding the database files")
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "`address` to listen on")
	fs.IntVar(&cfg.PageCacheCapacity, "page-cache-pages", cfg.PageCacheCapacity,
		"number of pages held in the page cache")
	fs.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize,
		"maximum number of connections served concurrently")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&cfg.LogStderr, "log-stderr", "s", cfg.LogStderr, "log to standard error")
}
