package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/config"
	"github.com/verte-zerg/topy/internal/persist"
)

func TestDefaultConfigTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Nil(t, cfg.Server.Port)
	require.Empty(t, cfg.Fields)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "cli", "monitor", "check", "history", "config"} {
		if !names[want] {
			t.Fatalf("missing subcommand %q", want)
		}
	}
	if root.Flags().Lookup("autodump-delay") == nil {
		t.Fatalf("root command should accept the serve flags")
	}
}

func TestUDPAddressNeedsPort(t *testing.T) {
	require.Equal(t, "", udpAddress("0.0.0.0", 0))
	require.Equal(t, "0.0.0.0", udpAddress("0.0.0.0", 7000))
}

func TestPopulationOptions(t *testing.T) {
	cfg := config.FileConfig{Fields: []config.FieldConfig{{Name: "visits", Type: "events"}}}
	opts, err := populationOptions(cfg, "string", nil)
	require.NoError(t, err)
	require.Equal(t, 1, opts.Schema.Len())
	require.NotNil(t, opts.Env.Timer)

	if _, err := populationOptions(cfg, "uuid", nil); err == nil {
		t.Fatalf("expected an error for an unknown id type")
	}
	bad := config.FileConfig{Fields: []config.FieldConfig{{Name: "visits", Type: "nope"}}}
	if _, err := populationOptions(bad, "int", nil); err == nil {
		t.Fatalf("expected an error for an unknown field type")
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(conf, []byte("[[fields]]\nname = \"visits\"\ntype = \"events\"\n"), 0o644))

	opts, err := populationOptions(config.FileConfig{Fields: []config.FieldConfig{{Name: "visits", Type: "events"}}}, "int", nil)
	require.NoError(t, err)
	st := persist.NewState(opts)
	for _, id := range []string{"7", "9"} {
		u := st.Users.Open(id, true)
		u.Field(0).Add(1)
		u.Unlock()
	}
	dump := filepath.Join(dir, "dump.txt")
	_, err = persist.Dump(st, dump)
	require.NoError(t, err)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check", dump, "--conf", conf})
	require.NoError(t, root.Execute())
	require.True(t, strings.HasPrefix(out.String(), dump+": text dump, 1 fields, 0 groups, 2 users"), out.String())

	broken := filepath.Join(dir, "broken.txt")
	require.NoError(t, os.WriteFile(broken, []byte("{ nope"), 0o644))
	root = newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"check", broken, "--conf", conf})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected check to fail on a broken dump")
	}
}
