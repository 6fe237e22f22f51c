package fabric

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/logging"
	"github.com/rhillum/clusterforge/internal/nodestate"
)

type fakeHelm struct {
	err      error
	installs []string
}

func (f *fakeHelm) InstallOrUpgrade(_ context.Context, releaseName, repoURL, chartName, version string, _ map[string]interface{}) error {
	f.installs = append(f.installs, releaseName+" "+repoURL+" "+chartName+" "+version)
	return f.err
}

func readyAgentPod(namespace, name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func operatorDeployment() []runtime.Object {
	replicas := int32(1)
	return []runtime.Object{
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: operatorNS}},
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: chartName, Namespace: operatorNS},
			Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
			Status:     appsv1.DeploymentStatus{AvailableReplicas: 1},
		},
	}
}

type fabricFixture struct {
	installer *Installer
	helm      *fakeHelm
	client    *k8s.Client
	store     *nodestate.Store
	cfg       *config.Config
}

func newFixture(t *testing.T, objects ...runtime.Object) *fabricFixture {
	t.Helper()

	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{
		installationGVR: "InstallationList",
	})
	client := k8s.NewFromClients(k8sfake.NewSimpleClientset(objects...), dyn)

	cfg := config.Default()
	cfg.Role = config.RoleLeader
	cfg.Fabric.Version = "v3.28.0"
	cfg.Timeouts.FabricWait = 100 * time.Millisecond
	cfg.Timeouts.FabricAvailableWait = 50 * time.Millisecond

	store := nodestate.NewStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, store.Transition(nodestate.Installed, config.RoleLeader))
	require.NoError(t, store.Transition(nodestate.Initialized, config.RoleLeader))

	helm := &fakeHelm{}
	inst := New(cfg, client, helm, logging.NewTestLogger(&bytes.Buffer{}), store)
	return &fabricFixture{installer: inst, helm: helm, client: client, store: store, cfg: cfg}
}

func TestInstall_DeploysOperatorAndInstallation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, operatorDeployment()...)

	require.NoError(t, f.installer.Install(context.Background()))

	require.Len(t, f.helm.installs, 1)
	assert.Equal(t, "calico https://docs.tigera.io/calico/charts tigera-operator v3.28.0", f.helm.installs[0])

	obj, found, err := f.client.GetUnstructured(context.Background(), installationGVR, "", installation)
	require.NoError(t, err)
	require.True(t, found, "the Installation resource must be applied")

	pools, found, err := unstructured.NestedSlice(obj.Object, "spec", "calicoNetwork", "ipPools")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, pools, 1)
	pool := pools[0].(map[string]interface{})
	assert.Equal(t, config.DefaultPodCIDR, pool["cidr"])
	assert.Equal(t, "VXLAN", pool["encapsulation"])

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, nodestate.Networked, rec.Phase)
}

func TestInstall_AlreadyRunningIsNoOp(t *testing.T) {
	t.Parallel()

	cases := map[string]*corev1.Pod{
		"operator convention": readyAgentPod(agentNS, "calico-node-a",
			map[string]string{"app.kubernetes.io/name": "calico-node"}),
		"legacy manifest convention": readyAgentPod(legacyNS, "calico-node-b",
			map[string]string{"k8s-app": "calico-node"}),
	}

	for name, pod := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, pod)

			require.NoError(t, f.installer.Install(context.Background()))
			assert.Empty(t, f.helm.installs, "no chart operations on a networked cluster")

			rec, err := f.store.Load()
			require.NoError(t, err)
			assert.Equal(t, nodestate.Networked, rec.Phase)
		})
	}
}

func TestInstall_ChartFailureIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, operatorDeployment()...)
	f.helm.err = errors.New("connection refused")

	err := f.installer.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tigera-operator chart")

	_, found, gerr := f.client.GetUnstructured(context.Background(), installationGVR, "", installation)
	require.NoError(t, gerr)
	assert.False(t, found, "no Installation may be applied when the operator failed to deploy")
}

func TestInstall_OperatorTimeoutIsFatal(t *testing.T) {
	t.Parallel()
	// Chart "installs" but the deployment never shows up.
	f := newFixture(t)

	err := f.installer.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not appear")
}

func TestInstall_AgentDelayIsNotFatal(t *testing.T) {
	t.Parallel()
	// Operator healthy, no agent pods: workers may still be joining.
	f := newFixture(t, operatorDeployment()...)

	require.NoError(t, f.installer.Install(context.Background()))

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, nodestate.Networked, rec.Phase)
}

func TestInstall_HonorsFabricTuning(t *testing.T) {
	t.Parallel()
	f := newFixture(t, operatorDeployment()...)
	f.cfg.Network.PodCIDR = "192.168.0.0/16"
	f.cfg.Fabric.Encapsulation = "IPIPCrossSubnet"
	f.cfg.Fabric.MTU = 8950

	require.NoError(t, f.installer.Install(context.Background()))

	obj, found, err := f.client.GetUnstructured(context.Background(), installationGVR, "", installation)
	require.NoError(t, err)
	require.True(t, found)

	mtu, _, err := unstructured.NestedInt64(obj.Object, "spec", "calicoNetwork", "mtu")
	require.NoError(t, err)
	assert.Equal(t, int64(8950), mtu)

	pools, _, err := unstructured.NestedSlice(obj.Object, "spec", "calicoNetwork", "ipPools")
	require.NoError(t, err)
	pool := pools[0].(map[string]interface{})
	assert.Equal(t, "192.168.0.0/16", pool["cidr"])
	assert.Equal(t, "IPIPCrossSubnet", pool["encapsulation"])
}

func TestOperatorEncapsulation(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "VXLAN", operatorEncapsulation("vxlan"))
	assert.Equal(t, "None", operatorEncapsulation("none"))
	assert.Equal(t, "IPIP", operatorEncapsulation("IPIP"))
	assert.Equal(t, "VXLANCrossSubnet", operatorEncapsulation("VXLANCrossSubnet"))
	assert.Equal(t, "IPIPCrossSubnet", operatorEncapsulation("ipipcrosssubnet"))
}
