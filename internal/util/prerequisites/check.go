// Package prerequisites verifies the host preconditions a component needs
// before it mutates anything: required binaries, root privilege, and the
// shared storage mount. Failures are fatal and carry remediation text.
package prerequisites

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Error is a failed prerequisite: fatal, not retried, with explicit
// remediation for the operator.
type Error struct {
	Check       string
	Remediation string
}

func (e *Error) Error() string {
	return fmt.Sprintf("prerequisite check %q failed: %s", e.Check, e.Remediation)
}

// Tool is a host binary a component requires.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string
}

// InstallerTools returns the tools the node installer itself shells out to.
func InstallerTools() []Tool {
	return []Tool{
		{Name: "apt-get", Required: true, Description: "Required to install the runtime and CLI packages"},
		{Name: "systemctl", Required: true, Description: "Required to enable the kubelet and containerd services"},
		{Name: "modprobe", Required: true, Description: "Required to load the overlay and br_netfilter kernel modules"},
		{Name: "sysctl", Required: true, Description: "Required to apply the bridge and forwarding network parameters"},
		{Name: "swapoff", Required: true, Description: "Required to disable swap before starting the kubelet"},
	}
}

// ClusterTools returns the tools the init/join components execute.
func ClusterTools() []Tool {
	return []Tool{
		{Name: "kubeadm", Required: true, Description: "Required to initialize or join the cluster"},
		{Name: "kubectl", Required: false, Description: "Useful for manual inspection of the cluster"},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns a prerequisite error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, tool.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &Error{
		Check:       "required tools",
		Remediation: fmt.Sprintf("install %s and re-run", strings.Join(missing, ", ")),
	}
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := lookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = getToolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// geteuid is swapped in tests.
var geteuid = os.Geteuid

// CheckRoot verifies the process runs with root privilege; every mutating
// component needs it.
func CheckRoot() error {
	if geteuid() != 0 {
		return &Error{
			Check:       "root privilege",
			Remediation: "run under sudo or as root",
		}
	}
	return nil
}

// CheckMount verifies the shared storage mount is attached. The
// provisioning layer is responsible for attaching it before the bootstrap
// runs.
func CheckMount(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return &Error{
			Check:       "shared storage mount",
			Remediation: fmt.Sprintf("attach the shared storage at %s (the provisioning layer mounts it) and re-run", path),
		}
	}
	return nil
}

// getToolVersion attempts to get the version of a tool.
// Returns empty string if version cannot be determined.
func getToolVersion(name string) string {
	versionFlags := []string{"--version", "version", "-v"}

	for _, flag := range versionFlags {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		cmd := exec.Command(name, flag)
		output, err := cmd.Output()
		if err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				return strings.TrimSpace(lines[0])
			}
		}
	}

	return ""
}
