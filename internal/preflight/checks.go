// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net/url"
	"os"
)

// fdOverhead covers the metrics server, log output, the targets source
// and the runtime's own descriptors.
const fdOverhead = 100

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Requirements describes the load the process is about to generate.
type Requirements struct {
	// MaxInFlight is targets x requests per target: the most sockets
	// that can be open for probes at once.
	MaxInFlight int

	// IdleConns is the idle pool size kept by the probe client.
	IdleConns int

	// Targets are checked for a usable URL form.
	Targets []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(req Requirements) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	// File descriptor check
	fdCheck := checkFileDescriptors(req.MaxInFlight + req.IdleConns)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	// Ephemeral port check (warning only)
	result.Checks = append(result.Checks, checkEphemeralPorts(req.MaxInFlight))

	// Target URL check (warning only, bad URLs just count as errors)
	result.Checks = append(result.Checks, checkTargetURLs(req.Targets))

	return result
}

// fdCheck builds the file descriptor result from a soft limit.
func fdCheck(sockets int, actual int) Check {
	required := sockets + fdOverhead
	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d sockets)", actual, required, sockets),
	}
}

// checkEphemeralPorts checks if enough ephemeral ports are available.
func checkEphemeralPorts(sockets int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}
	return ephemeralPortsFromRange(string(data), sockets)
}

func ephemeralPortsFromRange(data string, sockets int) Check {
	var low, high int
	if _, err := fmt.Sscanf(data, "%d %d", &low, &high); err != nil || high < low {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unparseable port range %q", data),
		}
	}
	available := high - low

	// Closed probe sockets linger in TIME_WAIT, so leave headroom
	recommended := sockets * 2

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true, // Don't fail on this
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// checkTargetURLs warns about targets that can never succeed.
func checkTargetURLs(targets []string) Check {
	var bad []string
	for _, raw := range targets {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad = append(bad, raw)
		}
	}

	if len(bad) == 0 {
		return Check{
			Name:    "target_urls",
			Passed:  true,
			Message: fmt.Sprintf("%d targets look valid", len(targets)),
		}
	}

	example := bad[0]
	if len(example) > 60 {
		example = example[:57] + "..."
	}
	return Check{
		Name:    "target_urls",
		Passed:  true,
		Warning: true,
		Message: fmt.Sprintf("%d of %d targets are not http(s) URLs, e.g. %q", len(bad), len(targets), example),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 65536 (or edit /etc/security/limits.conf), or lower requests_per_target"
	case "ephemeral_ports":
		return "sysctl -w net.ipv4.ip_local_port_range=\"1024 65535\""
	case "target_urls":
		return "use absolute http:// or https:// URLs in the targets source"
	default:
		return "see documentation"
	}
}
