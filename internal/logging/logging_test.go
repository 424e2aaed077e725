package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewHonoursVerbosity(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, 1).WithName("motor")

	log.Info("started", "period", "15ms")
	log.V(1).Info("skipped", "port", 3)
	log.V(2).Info("cycle")

	out := buf.String()
	if !strings.Contains(out, `motor: "level"=0 "msg"="started" "period"="15ms"`) {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, `"msg"="skipped" "port"=3`) {
		t.Errorf("missing V(1) line in %q", out)
	}
	if strings.Contains(out, "cycle") {
		t.Errorf("V(2) line should be dropped: %q", out)
	}
}
