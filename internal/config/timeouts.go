package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable wait budgets.
// These values can be customized via environment variables.
type Timeouts struct {
	JoinPoll            time.Duration // Interval between rendezvous channel reads while joining
	JoinTimeout         time.Duration // Total budget for a credential to appear
	ReadinessInterval   time.Duration // Interval between control-plane/agent readiness probes
	ReadinessAttempts   int           // Attempt cap for readiness probes
	FabricWait          time.Duration // Budget for fabric agent convergence (non-fatal)
	FabricAvailableWait time.Duration // Budget for the fabric operator Available condition (non-fatal)
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - CLUSTERFORGE_JOIN_POLL (default: 10s)
//   - CLUSTERFORGE_JOIN_TIMEOUT (default: 600s)
//   - CLUSTERFORGE_READINESS_INTERVAL (default: 10s)
//   - CLUSTERFORGE_READINESS_ATTEMPTS (default: 30)
//   - CLUSTERFORGE_FABRIC_WAIT (default: 5m)
//   - CLUSTERFORGE_FABRIC_AVAILABLE_WAIT (default: 2m)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		JoinPoll:            parseDuration("CLUSTERFORGE_JOIN_POLL", 10*time.Second),
		JoinTimeout:         parseDuration("CLUSTERFORGE_JOIN_TIMEOUT", 600*time.Second),
		ReadinessInterval:   parseDuration("CLUSTERFORGE_READINESS_INTERVAL", 10*time.Second),
		ReadinessAttempts:   parseInt("CLUSTERFORGE_READINESS_ATTEMPTS", 30),
		FabricWait:          parseDuration("CLUSTERFORGE_FABRIC_WAIT", 5*time.Minute),
		FabricAvailableWait: parseDuration("CLUSTERFORGE_FABRIC_AVAILABLE_WAIT", 2*time.Minute),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
