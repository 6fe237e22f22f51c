// Package joiner enrolls a worker node into the cluster: it polls the
// rendezvous channel for the join credential, validates it fail-closed,
// executes the join, and confirms local kubelet registration.
package joiner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/rendezvous"
	"github.com/rhillum/clusterforge/internal/retry"
	"github.com/rhillum/clusterforge/internal/system"
)

// Join-state artifacts kubeadm leaves on a joined node.
const (
	KubeletConfPath  = "/etc/kubernetes/kubelet.conf"
	KubeletClientPEM = "/var/lib/kubelet/pki/kubelet-client-current.pem"
)

// ErrCredentialTimeout is returned when no credential appeared on the
// channel within the join timeout.
var ErrCredentialTimeout = errors.New("no join credential appeared on the rendezvous channel")

// Joiner drives one worker through Installed -> Joined.
type Joiner struct {
	cfg     *config.Config
	runner  system.Runner
	channel rendezvous.Channel
	log     *logrus.Entry
	state   *nodestate.Store

	// root prefixes filesystem probes; tests point it at a temp dir.
	root string

	// connectivityProbe checks the control-plane endpoint is reachable,
	// defaulting to a TCP dial.
	connectivityProbe func(ctx context.Context, endpoint string) error

	// registrationProbe checks the local kubelet has registered its node
	// object; the default queries the API with the kubelet kubeconfig.
	registrationProbe func(ctx context.Context) error
}

// New constructs a Joiner against the real host.
func New(cfg *config.Config, runner system.Runner, channel rendezvous.Channel, log *logrus.Entry, state *nodestate.Store) *Joiner {
	j := &Joiner{
		cfg:     cfg,
		runner:  runner,
		channel: channel,
		log:     log,
		state:   state,
		root:    "/",
	}
	j.connectivityProbe = dialProbe
	j.registrationProbe = j.defaultRegistrationProbe
	return j
}

// Join is idempotent: a node whose join-state artifacts exist and whose
// control-plane connectivity probe succeeds short-circuits to success with
// no action. Otherwise it polls the channel every pollInterval until a
// credential appears or timeout elapses (an explicit, fatal timeout
// error), validates the artifact before executing anything, runs the join,
// and waits for kubelet registration within the readiness budget.
func (j *Joiner) Join(ctx context.Context, timeout, pollInterval time.Duration) error {
	if j.alreadyJoined(ctx) {
		j.log.Info("node already joined, nothing to do")
		j.markJoined()
		return nil
	}

	joinCommand, err := j.awaitCredential(ctx, timeout, pollInterval)
	if err != nil {
		return err
	}

	// Validate before executing, never the other way around: the mailbox
	// is untrusted input.
	cred, err := rendezvous.ParseJoinCommand(joinCommand)
	if err != nil {
		return err
	}
	j.log.Infof("received join credential for %s (token %s…)", cred.Endpoint, cred.Token[:6])

	if err := j.runner.Run(ctx, cred.Argv[0], cred.Argv[1:]...); err != nil {
		return fmt.Errorf("kubeadm join failed: %w", err)
	}

	if err := j.waitForRegistration(ctx); err != nil {
		// The join itself is not rolled back; the operator inspects and
		// re-runs.
		return fmt.Errorf("node did not register with the control plane: %w", err)
	}

	j.log.Info("node joined the cluster")
	j.markJoined()
	return nil
}

func (j *Joiner) alreadyJoined(ctx context.Context) bool {
	for _, artifact := range []string{KubeletConfPath, KubeletClientPEM} {
		if _, err := os.Stat(j.path(artifact)); err != nil {
			return false
		}
	}

	endpoint := j.cfg.Network.ControlPlaneEndpoint
	if endpoint == "" {
		return false
	}
	if err := j.connectivityProbe(ctx, endpoint); err != nil {
		j.log.Debugf("join artifacts present but control plane unreachable: %v", err)
		return false
	}
	return true
}

// awaitCredential polls the channel. Channel unavailability (mount not yet
// attached) is treated like an empty channel: keep polling until the
// budget runs out.
func (j *Joiner) awaitCredential(ctx context.Context, timeout, pollInterval time.Duration) (string, error) {
	j.log.Infof("waiting for join credential (poll %s, timeout %s)", pollInterval, timeout)

	var joinCommand string
	err := retry.Poll(ctx, pollInterval, timeout, func(ctx context.Context) (bool, error) {
		artifact, ok, err := j.channel.TryRead(ctx)
		if err != nil {
			var unavailable *rendezvous.UnavailableError
			if errors.As(err, &unavailable) {
				j.log.Debugf("rendezvous channel not available yet: %v", err)
				return false, nil
			}
			return false, retry.Fatal(err)
		}
		if !ok {
			return false, nil
		}
		joinCommand = artifact
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrDeadlineExceeded) {
			return "", fmt.Errorf("%w within %s: %w", ErrCredentialTimeout, timeout, err)
		}
		return "", err
	}
	return joinCommand, nil
}

func (j *Joiner) waitForRegistration(ctx context.Context) error {
	timeouts := j.cfg.Timeouts
	j.log.Infof("waiting for kubelet registration (up to %d attempts at %s intervals)",
		timeouts.ReadinessAttempts, timeouts.ReadinessInterval)

	return retry.PollAttempts(ctx, timeouts.ReadinessInterval, timeouts.ReadinessAttempts, func(ctx context.Context) (bool, error) {
		if err := j.registrationProbe(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// defaultRegistrationProbe uses the kubelet's own kubeconfig, which may
// only read its node object; that is all the probe needs.
func (j *Joiner) defaultRegistrationProbe(ctx context.Context) error {
	client, err := k8s.NewClient(j.path(KubeletConfPath))
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return err
	}

	node, found, err := client.GetNode(ctx, strings.ToLower(hostname))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("node object %s not yet registered", hostname)
	}

	// The Ready condition must be reported, not necessarily True: a fresh
	// worker stays NotReady until the overlay network installs, which
	// happens after the join.
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return nil
		}
	}
	return fmt.Errorf("node %s registered but reports no Ready condition yet", hostname)
}

func (j *Joiner) path(p string) string {
	return filepath.Join(j.root, strings.TrimPrefix(p, "/"))
}

func (j *Joiner) markJoined() {
	if err := j.state.Transition(nodestate.Joined, config.RoleWorker); err != nil {
		j.log.Warnf("could not persist lifecycle state: %v", err)
	}
}

func dialProbe(ctx context.Context, endpoint string) error {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}
