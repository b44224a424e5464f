package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "compass") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, AppVersion) {
		t.Errorf("output missing version: %q", out)
	}
}
