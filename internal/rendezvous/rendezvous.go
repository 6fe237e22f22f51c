package rendezvous

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Artifact names, fixed relative to the channel root.
const (
	JoinCommandArtifact = "join-command.txt"
	ClusterInfoArtifact = "cluster-info.txt"
	EpochArtifact       = "epoch.txt"
)

// Channel is the capability surface of the rendezvous mailbox.
//
// Publish overwrites both artifacts; there is no locking or versioning by
// design, so correctness relies on the leader writing before any worker can
// legitimately read. TryRead returns ok=false when no credential has been
// published yet; that is not an error.
type Channel interface {
	Publish(ctx context.Context, joinCommand, clusterInfo string) error
	TryRead(ctx context.Context) (joinCommand string, ok bool, err error)
}

// UnavailableError indicates the channel backing store cannot be reached
// (mount absent, bucket unreachable). The Initializer treats it as a
// warning; the Joiner keeps polling through it.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rendezvous channel (%s backend) unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// MalformedHandoffError indicates a mailbox artifact was present but failed
// structural validation. The artifact must never be executed; the error
// carries the reason, never the full untrusted payload.
type MalformedHandoffError struct {
	Reason string
}

func (e *MalformedHandoffError) Error() string {
	return fmt.Sprintf("malformed join credential in rendezvous channel: %s", e.Reason)
}

// nextEpoch builds the epoch stamp for a publish: "<count> <RFC3339 time>".
// The count increments over the previous stamp so operators can tell a
// re-publish from a stale artifact. Readers never enforce the stamp.
func nextEpoch(previous string) string {
	count := 1
	fields := strings.Fields(previous)
	if len(fields) > 0 {
		if n, err := strconv.Atoi(fields[0]); err == nil {
			count = n + 1
		}
	}
	return fmt.Sprintf("%d %s", count, time.Now().UTC().Format(time.RFC3339))
}
