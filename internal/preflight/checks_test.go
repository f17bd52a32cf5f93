package preflight

import (
	"bytes"
	"strings"
	"testing"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") || !strings.Contains(s, "100") {
			t.Errorf("Should contain actual and required values: %q", s)
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{Name: "test_check", Required: 100, Actual: 50, Passed: false}
		if !strings.Contains(c.String(), "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{Name: "test_check", Passed: true, Warning: true, Message: "warning message"}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

func TestRunAll(t *testing.T) {
	result := RunAll(Requirements{
		MaxInFlight: 10,
		IdleConns:   10,
		Targets:     []string{"http://a.example.com/", "https://b.example.com/x"},
	})

	if result == nil {
		t.Fatal("RunAll returned nil")
	}

	names := make(map[string]Check)
	for _, c := range result.Checks {
		names[c.Name] = c
	}
	for _, want := range []string{"file_descriptors", "ephemeral_ports", "target_urls"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing %s check", want)
		}
	}

	// Ports and URLs warn at most
	if !names["ephemeral_ports"].Passed {
		t.Error("ephemeral_ports must never fail")
	}
	if c := names["target_urls"]; !c.Passed || c.Warning {
		t.Errorf("target_urls = %+v, want clean pass", c)
	}
}

func TestRunAll_HugeLoad(t *testing.T) {
	result := RunAll(Requirements{MaxInFlight: 1<<31 - 1})

	for _, c := range result.Checks {
		if c.Name == "file_descriptors" && c.Passed && !c.Warning {
			t.Errorf("file_descriptors passed with %d required", c.Required)
		}
	}
}

func TestFdCheck(t *testing.T) {
	tests := []struct {
		sockets, actual int
		want            bool
	}{
		{0, 1024, true},
		{924, 1024, true},  // exactly 924 + overhead
		{925, 1024, false}, // one over
		{10000, 1024, false},
	}

	for _, tt := range tests {
		c := fdCheck(tt.sockets, tt.actual)
		if c.Passed != tt.want {
			t.Errorf("fdCheck(%d, %d).Passed = %v, want %v", tt.sockets, tt.actual, c.Passed, tt.want)
		}
		if c.Required != tt.sockets+fdOverhead {
			t.Errorf("Required = %d, want %d", c.Required, tt.sockets+fdOverhead)
		}
	}
}

func TestEphemeralPortsFromRange(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		sockets     int
		wantWarning bool
		wantActual  int
	}{
		{"roomy", "32768\t60999\n", 1000, false, 28231},
		{"tight", "32768\t60999\n", 20000, true, 28231},
		{"garbage", "nope", 10, true, 0},
		{"inverted", "60999 32768", 10, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ephemeralPortsFromRange(tt.data, tt.sockets)
			if !c.Passed {
				t.Error("ephemeral_ports must never fail")
			}
			if c.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v (%s)", c.Warning, tt.wantWarning, c.Message)
			}
			if c.Actual != tt.wantActual {
				t.Errorf("Actual = %d, want %d", c.Actual, tt.wantActual)
			}
		})
	}
}

func TestCheckTargetURLs(t *testing.T) {
	tests := []struct {
		name        string
		targets     []string
		wantWarning bool
	}{
		{"empty", nil, false},
		{"valid", []string{"http://a/", "https://b:8443/path?q=1"}, false},
		{"no scheme", []string{"example.com/path"}, true},
		{"ftp", []string{"ftp://example.com/"}, true},
		{"no host", []string{"http:///path"}, true},
		{"bad escape", []string{"http://a/%zz"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkTargetURLs(tt.targets)
			if !c.Passed {
				t.Error("target_urls must never fail")
			}
			if c.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v (%s)", c.Warning, tt.wantWarning, c.Message)
			}
		})
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"ephemeral_ports", "ip_local_port_range"},
		{"target_urls", "https://"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if fix := suggestFix(tc.name); !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "target_urls", Passed: true, Message: "2 targets look valid"},
			{Name: "file_descriptors", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)
	out := buf.String()

	if !strings.HasPrefix(out, "Preflight checks:") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Fix: ulimit -n") {
		t.Error("failed check should print a fix")
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Error("passing check should not print a fix")
	}
}
