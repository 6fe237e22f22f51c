// Package k8s wraps the Kubernetes clients used by the bootstrap
// components: liveness probes, readiness queries, and dynamic resource
// submission for the fabric custom resource.
package k8s

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps clientset and dynamic access behind one handle.
type Client struct {
	Clientset kubernetes.Interface
	Dynamic   dynamic.Interface
}

// NewClient creates a client from a kubeconfig file.
func NewClient(kubeconfigPath string) (*Client, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Client{Clientset: clientset, Dynamic: dynamicClient}, nil
}

// NewFromClients wires pre-built clients; tests pass fakes here.
func NewFromClients(clientset kubernetes.Interface, dyn dynamic.Interface) *Client {
	return &Client{Clientset: clientset, Dynamic: dyn}
}

// Healthz asks the API server's /healthz endpoint for liveness.
func (c *Client) Healthz(ctx context.Context) error {
	rest := c.Clientset.Discovery().RESTClient()
	if rest == nil {
		// Fake clientsets carry no REST client.
		return fmt.Errorf("discovery client has no REST transport")
	}
	body, err := rest.Get().AbsPath("/healthz").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("control plane liveness query failed: %w", err)
	}
	if string(body) != "ok" {
		return fmt.Errorf("control plane reported %q", string(body))
	}
	return nil
}

// GetNode fetches one node, returning found=false for absence.
func (c *Client) GetNode(ctx context.Context, name string) (*corev1.Node, bool, error) {
	node, err := c.Clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get node %s: %w", name, err)
	}
	return node, true, nil
}

// NodesReady returns the ready and total node counts.
func (c *Client) NodesReady(ctx context.Context) (ready, total int, err error) {
	nodes, err := c.Clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list nodes: %w", err)
	}

	for _, node := range nodes.Items {
		if IsNodeReady(&node) {
			ready++
		}
	}
	return ready, len(nodes.Items), nil
}

// PodsExist reports whether any pod matches the selector in the namespace.
// A missing namespace counts as no pods, not an error.
func (c *Client) PodsExist(ctx context.Context, namespace, labelSelector string) (bool, error) {
	pods, err := c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	return len(pods.Items) > 0, nil
}

// PodsReady returns ready and total counts for pods matching the selector.
func (c *Client) PodsReady(ctx context.Context, namespace, labelSelector string) (ready, total int, err error) {
	pods, err := c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	for _, pod := range pods.Items {
		if IsPodReady(&pod) {
			ready++
		}
	}
	return ready, len(pods.Items), nil
}

// ApplyUnstructured creates the object, falling back to update when it
// already exists. Used for the fabric Installation custom resource.
func (c *Client) ApplyUnstructured(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) error {
	var err error
	if ns := obj.GetNamespace(); ns != "" {
		_, err = c.Dynamic.Resource(gvr).Namespace(ns).Create(ctx, obj, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			err = c.updateNamespaced(ctx, gvr, ns, obj)
		}
	} else {
		_, err = c.Dynamic.Resource(gvr).Create(ctx, obj, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			err = c.updateClusterScoped(ctx, gvr, obj)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s/%s: %w", obj.GetKind(), obj.GetName(), err)
	}
	return nil
}

// GetUnstructured fetches one object, returning found=false for absence.
func (c *Client) GetUnstructured(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, bool, error) {
	var obj *unstructured.Unstructured
	var err error
	if namespace != "" {
		obj, err = c.Dynamic.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	} else {
		obj, err = c.Dynamic.Resource(gvr).Get(ctx, name, metav1.GetOptions{})
	}
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s %s: %w", gvr.Resource, name, err)
	}
	return obj, true, nil
}

func (c *Client) updateNamespaced(ctx context.Context, gvr schema.GroupVersionResource, ns string, obj *unstructured.Unstructured) error {
	existing, err := c.Dynamic.Resource(gvr).Namespace(ns).Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	_, err = c.Dynamic.Resource(gvr).Namespace(ns).Update(ctx, obj, metav1.UpdateOptions{})
	return err
}

func (c *Client) updateClusterScoped(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) error {
	existing, err := c.Dynamic.Resource(gvr).Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	_, err = c.Dynamic.Resource(gvr).Update(ctx, obj, metav1.UpdateOptions{})
	return err
}

// IsPodReady checks if a pod is running and reports the Ready condition.
func IsPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}

	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady &&
			condition.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}

// IsNodeReady checks the node's Ready condition.
func IsNodeReady(node *corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady &&
			condition.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}
