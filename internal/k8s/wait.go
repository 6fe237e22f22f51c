package k8s

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// WaitForNamespace waits for a namespace to exist.
func (c *Client) WaitForNamespace(ctx context.Context, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		_, err := c.Clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		return true, nil
	})
}

// WaitForDeploymentAvailable waits for a deployment to have its desired
// replica count available.
func (c *Client) WaitForDeploymentAvailable(ctx context.Context, namespace, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 5*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		deploy, err := c.Clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if deploy.Spec.Replicas != nil && deploy.Status.AvailableReplicas < *deploy.Spec.Replicas {
			return false, nil
		}
		return deploy.Status.AvailableReplicas > 0, nil
	})
}

// WaitForCondition polls an arbitrary condition until it holds or the
// timeout elapses. Probe errors are swallowed; only the budget ends the
// wait.
func (c *Client) WaitForCondition(ctx context.Context, timeout time.Duration, condition func(ctx context.Context) (bool, error)) error {
	return wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		done, err := condition(ctx)
		if err != nil {
			return false, nil
		}
		return done, nil
	})
}

// WaitForPodsReady waits for all pods matching a label selector to become
// ready. At least one matching pod must exist.
func (c *Client) WaitForPodsReady(ctx context.Context, namespace, labelSelector string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 5*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		ready, total, err := c.PodsReady(ctx, namespace, labelSelector)
		if err != nil {
			return false, nil
		}
		return total > 0 && ready == total, nil
	})
}
