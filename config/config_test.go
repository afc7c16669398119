package config

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterFlagsDefaults(t *testing.T) {
	os.Unsetenv("TAGDIR_NAME")
	os.Unsetenv("TAGDIR_DB")
	os.Unsetenv("TAGDIR_MOUNTPOINT")
	os.Unsetenv("TAGDIR_ALLOW_OTHER")
	os.Unsetenv("TAGDIR_LOG_LEVEL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := &Config{}
	RegisterFlags(fs, cfg)
	require.NoError(t, fs.Parse(nil))

	require.Equal(t, "./tagdir.db", cfg.DBPath)
	require.True(t, cfg.AllowOther)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "Tagdir_", cfg.FSName())
}

func TestRegisterFlagsEnvOverride(t *testing.T) {
	os.Setenv("TAGDIR_NAME", "mytags")
	os.Setenv("TAGDIR_ALLOW_OTHER", "false")
	defer os.Unsetenv("TAGDIR_NAME")
	defer os.Unsetenv("TAGDIR_ALLOW_OTHER")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := &Config{}
	RegisterFlags(fs, cfg)
	require.NoError(t, fs.Parse(nil))

	require.Equal(t, "mytags", cfg.Name)
	require.Equal(t, "Tagdir_mytags", cfg.FSName())
	require.False(t, cfg.AllowOther)
}

func TestRegisterFlagsExplicitOverridesEnv(t *testing.T) {
	os.Setenv("TAGDIR_DB", "/from/env.db")
	defer os.Unsetenv("TAGDIR_DB")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := &Config{}
	RegisterFlags(fs, cfg)
	require.NoError(t, fs.Parse([]string{"-db", "/explicit.db"}))

	require.Equal(t, "/explicit.db", cfg.DBPath)
}
