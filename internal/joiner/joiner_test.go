package joiner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/logging"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/rendezvous"
	"github.com/rhillum/clusterforge/internal/retry"
	"github.com/rhillum/clusterforge/internal/system"
)

const publishedJoin = "kubeadm join 10.0.0.10:6443 --token abcdef.0123456789abcdef " +
	"--discovery-token-ca-cert-hash sha256:1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

type joinFixture struct {
	joiner  *Joiner
	runner  *system.FakeRunner
	channel *rendezvous.FileChannel
	root    string
	store   *nodestate.Store
}

func newFixture(t *testing.T) *joinFixture {
	t.Helper()

	root := t.TempDir()
	mount := t.TempDir()
	runner := &system.FakeRunner{}
	channel := rendezvous.NewFileChannel(mount)
	store := nodestate.NewStore(filepath.Join(root, "var/lib/clusterforge"))
	require.NoError(t, store.Transition(nodestate.Installed, config.RoleWorker))

	cfg := config.Default()
	cfg.Role = config.RoleWorker
	cfg.Network.ControlPlaneEndpoint = "10.0.0.10:6443"
	cfg.Timeouts.ReadinessInterval = time.Millisecond
	cfg.Timeouts.ReadinessAttempts = 3

	j := New(cfg, runner, channel, logging.NewTestLogger(&bytes.Buffer{}), store)
	j.root = root
	j.connectivityProbe = func(context.Context, string) error { return nil }
	j.registrationProbe = func(context.Context) error { return nil }

	return &joinFixture{joiner: j, runner: runner, channel: channel, root: root, store: store}
}

// placeJoinArtifacts fakes a node that kubeadm join already ran on.
func placeJoinArtifacts(t *testing.T, root string) {
	t.Helper()
	for _, artifact := range []string{KubeletConfPath, KubeletClientPEM} {
		full := filepath.Join(root, artifact)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o600))
	}
}

func TestJoin_ExecutesPublishedCredential(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.channel.Publish(context.Background(), publishedJoin, "info"))

	require.NoError(t, f.joiner.Join(context.Background(), time.Second, time.Millisecond))

	assert.True(t, f.runner.CalledWith(publishedJoin), "the exact parsed command must run")

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, nodestate.Joined, rec.Phase)
}

func TestJoin_TimesOutWhenNoCredentialAppears(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	start := time.Now()
	err := f.joiner.Join(context.Background(), 30*time.Millisecond, 5*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialTimeout)
	assert.ErrorIs(t, err, retry.ErrDeadlineExceeded)
	assert.Empty(t, f.runner.Calls(), "nothing may execute without a credential")
	assert.Less(t, elapsed, 500*time.Millisecond, "the wait must stay near the configured budget")
}

func TestJoin_AlreadyJoinedShortCircuits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	placeJoinArtifacts(t, f.root)

	require.NoError(t, f.joiner.Join(context.Background(), time.Second, time.Millisecond))

	assert.Empty(t, f.runner.Calls(), "a joined node re-runs nothing")
}

func TestJoin_ArtifactsWithoutConnectivityRejoin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	placeJoinArtifacts(t, f.root)
	f.joiner.connectivityProbe = func(context.Context, string) error {
		return errors.New("connection refused")
	}
	require.NoError(t, f.channel.Publish(context.Background(), publishedJoin, "info"))

	require.NoError(t, f.joiner.Join(context.Background(), time.Second, time.Millisecond))
	assert.True(t, f.runner.CalledWith("kubeadm join"), "stale artifacts alone do not count as joined")
}

func TestJoin_RejectsMalformedCredentialWithoutExecuting(t *testing.T) {
	t.Parallel()

	malformed := map[string]string{
		"missing discovery hash": "kubeadm join 10.0.0.10:6443 --token abcdef.0123456789abcdef",
		"shell metacharacters":   publishedJoin + "; rm -rf /",
		"wrong binary":           "bash -c true",
	}

	for name, artifact := range malformed {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			require.NoError(t, f.channel.Publish(context.Background(), artifact, "info"))

			err := f.joiner.Join(context.Background(), time.Second, time.Millisecond)
			require.Error(t, err)

			var malformedErr *rendezvous.MalformedHandoffError
			assert.ErrorAs(t, err, &malformedErr)
			assert.Empty(t, f.runner.Calls(), "a rejected artifact must never execute")

			rec, serr := f.store.Load()
			require.NoError(t, serr)
			assert.NotEqual(t, nodestate.Joined, rec.Phase)
		})
	}
}

func TestJoin_ChannelUnavailableKeepsPolling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// A missing mount is indistinguishable from "leader not done yet";
	// the joiner keeps polling until the budget runs out.
	f.joiner.channel = rendezvous.NewFileChannel(filepath.Join(f.root, "never-mounted"))

	err := f.joiner.Join(context.Background(), 20*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialTimeout)
}

func TestJoin_RegistrationBudgetExhaustionIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.channel.Publish(context.Background(), publishedJoin, "info"))
	f.joiner.registrationProbe = func(context.Context) error {
		return errors.New("node object not yet registered")
	}

	err := f.joiner.Join(context.Background(), time.Second, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrDeadlineExceeded)
	assert.Contains(t, err.Error(), "did not register")
	assert.True(t, f.runner.CalledWith("kubeadm join"), "the join itself ran; only confirmation failed")
}

func TestJoin_JoinCommandFailureIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.channel.Publish(context.Background(), publishedJoin, "info"))
	f.runner.Errors = map[string]error{"kubeadm join": errors.New("exit status 1")}

	err := f.joiner.Join(context.Background(), time.Second, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubeadm join failed")

	rec, serr := f.store.Load()
	require.NoError(t, serr)
	assert.NotEqual(t, nodestate.Joined, rec.Phase)
}
