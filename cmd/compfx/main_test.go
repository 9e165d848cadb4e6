package main

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/1broseidon/compfx/internal/config"
)

func TestFormatSource(t *testing.T) {
	tests := []struct {
		name string
		src  config.Source
		want string
	}{
		{"default", config.Source{Kind: config.SourceDefault, Name: "defaults"}, "default:defaults"},
		{"bare default", config.Source{Kind: config.SourceDefault}, "default"},
		{"file with position", config.Source{Kind: config.SourceFile, File: "/c.yaml", Line: 3, Column: 5}, "file:/c.yaml:3:5"},
		{"file without position", config.Source{Kind: config.SourceFile, File: "/c.yaml"}, "file:/c.yaml"},
		{"anonymous file", config.Source{Kind: config.SourceFile}, "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSource(tt.src); got != tt.want {
				t.Errorf("formatSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintMainUsage_ListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printMainUsage(&buf)
	for _, cmd := range []string{"daemon", "status", "timelines", "timers", "reload", "config validate", "mcp serve"} {
		if !strings.Contains(buf.String(), cmd) {
			t.Errorf("usage is missing %q", cmd)
		}
	}
}

func TestParseNoArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no args", nil, -1},
		{"flag only", []string{"--json"}, -1},
		{"help", []string{"--help"}, 0},
		{"unknown flag", []string{"--bogus"}, 2},
		{"positional", []string{"extra"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("status", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			fs.Usage = func() {}
			fs.Bool("json", false, "")
			if got := parseNoArgs(fs, tt.args); got != tt.want {
				t.Errorf("parseNoArgs(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}
