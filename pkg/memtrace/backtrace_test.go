package memtrace

import (
	"strings"
	"testing"
)

func TestCaptureIncludesCallingFunction(t *testing.T) {
	frames := captureFromHelper()
	if len(frames) == 0 {
		t.Fatal("Capture returned no frames")
	}
	found := false
	for _, f := range frames {
		if strings.HasSuffix(f.Function, ".captureFromHelper") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no frame for the calling function captureFromHelper in %+v", frames)
	}
}

func captureFromHelper() []Frame {
	return Capture(0)
}
