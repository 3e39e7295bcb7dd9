package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "text")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", "json").With("component", "sync")
	l.Debugf("tick")
	if !strings.Contains(buf.String(), `"component":"sync"`) {
		t.Fatalf("missing field: %s", buf.String())
	}
}
