package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != logrus.DebugLevel {
		t.Error("expected debug level")
	}
	if ParseLevel("nonsense") != logrus.InfoLevel {
		t.Error("expected info fallback")
	}
}

func TestTextLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger("info", &buf)
	l.WithField("skill", "commonQnA").Info("decided")
	if !strings.Contains(buf.String(), "skill=commonQnA") {
		t.Errorf("missing field in %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	if Discard().WithField("k", "v") == nil {
		t.Fatal("expected non-nil entry")
	}
}
