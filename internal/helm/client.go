package helm

import (
	"context"
	"fmt"
	"os"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

// Client performs Helm operations in a single namespace.
type Client struct {
	namespace    string
	actionConfig *action.Configuration
}

// NewClient creates a Helm client from kubeconfig bytes.
func NewClient(kubeconfig []byte, namespace string) (*Client, error) {
	actionConfig := new(action.Configuration)
	restGetter := newMemoryRESTClientGetter(kubeconfig, namespace)

	// Helm's debug chatter goes nowhere; callers do their own logging.
	if err := actionConfig.Init(restGetter, namespace, "secret", func(string, ...interface{}) {}); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	return &Client{namespace: namespace, actionConfig: actionConfig}, nil
}

// InstallOrUpgrade installs the chart, or upgrades it when the release
// already exists. The release is not waited on: callers decide which
// workloads matter and wait for those directly.
func (c *Client) InstallOrUpgrade(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error {
	loaded, err := c.loadChart(repoURL, chartName, version)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", chartName, err)
	}

	exists, err := c.ReleaseExists(releaseName)
	if err != nil {
		return err
	}

	if !exists {
		installClient := action.NewInstall(c.actionConfig)
		installClient.ReleaseName = releaseName
		installClient.Namespace = c.namespace
		installClient.CreateNamespace = true
		installClient.Version = version
		installClient.Timeout = 5 * time.Minute

		_, err = installClient.RunWithContext(ctx, loaded, values)
		return err
	}

	upgradeClient := action.NewUpgrade(c.actionConfig)
	upgradeClient.Namespace = c.namespace
	upgradeClient.Version = version
	upgradeClient.ReuseValues = false
	upgradeClient.Timeout = 5 * time.Minute

	_, err = upgradeClient.RunWithContext(ctx, releaseName, loaded, values)
	return err
}

// ReleaseExists reports whether a release has any history in the namespace.
func (c *Client) ReleaseExists(releaseName string) (bool, error) {
	histClient := action.NewHistory(c.actionConfig)
	histClient.Max = 1
	if _, err := histClient.Run(releaseName); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Client) loadChart(repoURL, chartName, version string) (*chart.Chart, error) {
	settings := cli.New()

	chartPath, err := repo.FindChartInRepoURL(repoURL, chartName, version, "", "", "", getter.All(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to find chart in repo %s: %w", repoURL, err)
	}
	defer func() { _ = os.Remove(chartPath) }()

	return loader.Load(chartPath)
}
