package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, configName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[lower]
optimize = false
verify = true

[batch]
jobs = 3
ui = "off"

[trace]
level = "phase"

[report]
cache = true
`)
	c, err := readConfig(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.Lower.Optimize == nil || *c.Lower.Optimize || !c.Lower.Verify {
		t.Fatalf("lower section %+v", c.Lower)
	}
	if c.Batch.Jobs != 3 || c.Batch.UI != "off" || c.Trace.Level != "phase" || !c.Report.Cache {
		t.Fatalf("config %+v", c)
	}
}

func TestReadConfigRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "[lower]\ninline = true\n",
		"negative jobs": "[batch]\njobs = -1\n",
		"bad ui":        "[batch]\nui = \"sometimes\"\n",
		"syntax":        "[lower\n",
	}
	for name, body := range tests {
		path := writeConfig(t, t.TempDir(), body)
		if _, err := readConfig(path); err == nil {
			t.Fatalf("%s: accepted %q", name, body)
		}
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeConfig(t, root, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, ok, err := findConfig(nested)
	if err != nil || !ok {
		t.Fatalf("find: %v, %v", ok, err)
	}
	if got != want {
		t.Fatalf("found %q, want %q", got, want)
	}
}

func TestLowerOptionsFlagsOverrideConfig(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })
	off := false
	cfg = fileConfig{Lower: lowerConfig{Optimize: &off, Debug: true, MaxDiagnostics: 8}}

	cmd := &cobra.Command{Use: "x"}
	addLowerFlags(cmd)
	if err := cmd.ParseFlags([]string{"--debug=false", "--verify"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	opts, err := lowerOptions(cmd)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Debug || !opts.NoOptimize || !opts.Verify || opts.MaxDiagnostics != 8 {
		t.Fatalf("options %+v", opts)
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("always"); err == nil {
		t.Fatalf("accepted always")
	}
}

func TestRenderVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	info := versionInfo{Version: "1.2.3"}
	if err := renderVersionJSON(&buf, info, versionOptions{showHash: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "asyncexpr" || payload.Version != "1.2.3" || payload.GitCommit != "unknown" {
		t.Fatalf("payload %+v", payload)
	}
	if strings.Contains(buf.String(), "build_date") {
		t.Fatalf("build date shown without --date:\n%s", buf.String())
	}
}
