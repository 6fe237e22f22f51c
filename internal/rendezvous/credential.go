package rendezvous

import (
	"regexp"
	"strings"
)

// Credential is a validated join credential parsed from a mailbox artifact.
// A Credential is only constructed by ParseJoinCommand; its presence implies
// the artifact passed the fail-closed grammar check.
type Credential struct {
	// Endpoint is the control-plane host:port the join targets.
	Endpoint string

	// Token is the bootstrap token ([a-z0-9]{6}.[a-z0-9]{16}).
	Token string

	// DiscoveryHash is the CA cert hash (sha256:<64 hex>).
	DiscoveryHash string

	// Argv is the full command split into arguments, ready to execute
	// without shell interpretation.
	Argv []string
}

var (
	tokenPattern    = regexp.MustCompile(`^[a-z0-9]{6}\.[a-z0-9]{16}$`)
	hashPattern     = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
	endpointPattern = regexp.MustCompile(`^[0-9A-Za-z._-]+:[0-9]{1,5}$`)
)

// shellMeta are characters that would change meaning under a shell. Their
// presence anywhere in the artifact is grounds for rejection: the artifact
// must be a single plain command, not a script.
const shellMeta = ";&|`$><(){}*?!'\"\\"

// ParseJoinCommand validates a mailbox artifact against the accepted join
// grammar and returns the parsed credential. The grammar is exactly one
// line of the form:
//
//	kubeadm join <endpoint> --token <token> --discovery-token-ca-cert-hash sha256:<hash> [flags...]
//
// Both the token and the discovery hash are mandatory and must match their
// respective formats. Anything else returns a MalformedHandoffError and
// must never be executed (fail-closed).
func ParseJoinCommand(artifact string) (*Credential, error) {
	trimmed := strings.TrimSpace(artifact)
	if trimmed == "" {
		return nil, &MalformedHandoffError{Reason: "artifact is empty"}
	}
	if strings.ContainsAny(trimmed, "\n\r") {
		return nil, &MalformedHandoffError{Reason: "artifact spans multiple lines"}
	}
	if strings.ContainsAny(trimmed, shellMeta) {
		return nil, &MalformedHandoffError{Reason: "artifact contains shell metacharacters"}
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 3 || fields[0] != "kubeadm" || fields[1] != "join" {
		return nil, &MalformedHandoffError{Reason: "artifact is not a kubeadm join invocation"}
	}

	endpoint := fields[2]
	if !endpointPattern.MatchString(endpoint) {
		return nil, &MalformedHandoffError{Reason: "join endpoint is not host:port"}
	}

	cred := &Credential{Endpoint: endpoint, Argv: fields}

	for i := 3; i < len(fields); i++ {
		switch fields[i] {
		case "--token":
			if i+1 >= len(fields) {
				return nil, &MalformedHandoffError{Reason: "--token has no value"}
			}
			i++
			if !tokenPattern.MatchString(fields[i]) {
				return nil, &MalformedHandoffError{Reason: "token does not match the bootstrap token format"}
			}
			cred.Token = fields[i]
		case "--discovery-token-ca-cert-hash":
			if i+1 >= len(fields) {
				return nil, &MalformedHandoffError{Reason: "--discovery-token-ca-cert-hash has no value"}
			}
			i++
			if !hashPattern.MatchString(fields[i]) {
				return nil, &MalformedHandoffError{Reason: "discovery hash is not sha256:<64 hex>"}
			}
			cred.DiscoveryHash = fields[i]
		}
	}

	if cred.Token == "" {
		return nil, &MalformedHandoffError{Reason: "missing --token"}
	}
	if cred.DiscoveryHash == "" {
		return nil, &MalformedHandoffError{Reason: "missing --discovery-token-ca-cert-hash"}
	}

	return cred, nil
}
