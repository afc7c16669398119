// Package config provides tagdir's configuration: the handful of
// settings the mount process needs (database path, mountpoint, fsname,
// log level), loaded from command-line flags with environment-variable
// fallback and sensible defaults — the same flag/env hierarchy this
// codebase has always used, minus the database-backed tier, which has
// no analogue here: tagdir has no runtime-configurable entities of its
// own to store settings in.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every setting the mount process needs.
type Config struct {
	// Name identifies the mount for the CLI wrapper's mountpoint
	// discovery (fsname "Tagdir_" + Name).
	// Environment: TAGDIR_NAME
	Name string

	// DBPath is the filesystem path to the sqlite database backing the
	// tag/entity data model.
	// Environment: TAGDIR_DB
	// Default: "./tagdir.db"
	DBPath string

	// Mountpoint is the directory the virtual namespace is mounted on.
	// Environment: TAGDIR_MOUNTPOINT
	Mountpoint string

	// AllowOther enables allow_other so other system users can see the
	// mount, matching the reference mount options.
	// Environment: TAGDIR_ALLOW_OTHER
	// Default: true
	AllowOther bool

	// LogLevel is the minimum logger.Level emitted at startup.
	// Environment: TAGDIR_LOG_LEVEL
	// Default: "info"
	LogLevel string
}

// RegisterFlags binds Config's fields to the command line. Call it
// before flag.Parse(); explicitly-set flags take priority over the
// environment, which in turn overrides the defaults below.
func RegisterFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Name, "name", getEnv("TAGDIR_NAME", ""), "mount name, used for mountpoint discovery")
	fs.StringVar(&c.DBPath, "db", getEnv("TAGDIR_DB", "./tagdir.db"), "path to the sqlite data model")
	fs.StringVar(&c.Mountpoint, "mountpoint", getEnv("TAGDIR_MOUNTPOINT", ""), "directory to mount the namespace on")
	fs.BoolVar(&c.AllowOther, "allow-other", getEnvBool("TAGDIR_ALLOW_OTHER", true), "allow other users to see the mount")
	fs.StringVar(&c.LogLevel, "log-level", getEnv("TAGDIR_LOG_LEVEL", "info"), "trace, debug, info, warn, or error")
}

// FSName is the fsname this mount advertises, the same "Tagdir_<name>"
// convention the CLI wrapper uses to find the mountpoint again from
// /proc mount info.
func (c *Config) FSName() string {
	return "Tagdir_" + c.Name
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
