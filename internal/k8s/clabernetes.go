package k8s

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/util/retry"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

var (
	// TopologyGVR addresses clabernetes Topology resources.
	TopologyGVR = schema.GroupVersionResource{
		Group:    models.ClabernetesGroup,
		Version:  models.ClabernetesVersion,
		Resource: models.TopologyResource,
	}
	// ConnectivityGVR addresses clabernetes Connectivity resources.
	ConnectivityGVR = schema.GroupVersionResource{
		Group:    models.ClabernetesGroup,
		Version:  models.ClabernetesVersion,
		Resource: models.ConnectivityResource,
	}
)

// connectivityObject is the decode target for unstructured Connectivity objects.
type connectivityObject struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec              models.ConnectivitySpec `json:"spec,omitempty"`
}

// OwnerSelector selects objects clabernetes created for topologyName.
func OwnerSelector(topologyName string) string {
	return labels.SelectorFromSet(labels.Set{models.LabelTopologyOwner: topologyName}).String()
}

func resourceAttrs(kind, namespace, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("k8s.resource.kind", kind),
		attribute.String("k8s.resource.namespace", namespace),
		attribute.String("k8s.resource.name", name),
	}
}

// ListDeploymentsByOwner lists the Deployments owned by a Topology.
func (c *Client) ListDeploymentsByOwner(ctx context.Context, namespace, topologyName string) ([]appsv1.Deployment, error) {
	return callOnce(ctx, c, "k8s.list_deployments", resourceAttrs("Deployment", namespace, topologyName),
		func(ctx context.Context) ([]appsv1.Deployment, error) {
			list, err := c.Clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
				LabelSelector: OwnerSelector(topologyName),
			})
			if err != nil {
				return nil, err
			}
			return list.Items, nil
		})
}

// ListServicesByOwner lists the Services owned by a Topology.
func (c *Client) ListServicesByOwner(ctx context.Context, namespace, topologyName string) ([]corev1.Service, error) {
	return callOnce(ctx, c, "k8s.list_services", resourceAttrs("Service", namespace, topologyName),
		func(ctx context.Context) ([]corev1.Service, error) {
			list, err := c.Clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{
				LabelSelector: OwnerSelector(topologyName),
			})
			if err != nil {
				return nil, err
			}
			return list.Items, nil
		})
}

// GetConnectivity reads the Connectivity resource of a Topology (it shares the Topology's name).
func (c *Client) GetConnectivity(ctx context.Context, namespace, topologyName string) (*models.Connectivity, error) {
	return callOnce(ctx, c, "k8s.get_connectivity", resourceAttrs(models.ConnectivityKind, namespace, topologyName),
		func(ctx context.Context) (*models.Connectivity, error) {
			obj, err := c.Dynamic.Resource(ConnectivityGVR).Namespace(namespace).Get(ctx, topologyName, metav1.GetOptions{})
			if err != nil {
				return nil, err
			}
			return ConnectivityFromUnstructured(obj)
		})
}

// ConnectivityFromUnstructured converts a dynamic-client Connectivity object.
func ConnectivityFromUnstructured(obj *unstructured.Unstructured) (*models.Connectivity, error) {
	var decoded connectivityObject
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.UnstructuredContent(), &decoded); err != nil {
		return nil, fmt.Errorf("decode connectivity %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}
	return &models.Connectivity{
		Name:      decoded.Name,
		Namespace: decoded.Namespace,
		Labels:    decoded.Labels,
		Spec:      decoded.Spec,
	}, nil
}

// ListTopologies lists Topology resources in namespace, or in all namespaces when namespace is empty.
func (c *Client) ListTopologies(ctx context.Context, namespace string) ([]unstructured.Unstructured, error) {
	return call(ctx, c, "k8s.list_topologies", resourceAttrs(models.TopologyKind, namespace, ""),
		func(ctx context.Context) ([]unstructured.Unstructured, error) {
			var (
				list *unstructured.UnstructuredList
				err  error
			)
			if namespace == "" {
				list, err = c.Dynamic.Resource(TopologyGVR).List(ctx, metav1.ListOptions{})
			} else {
				list, err = c.Dynamic.Resource(TopologyGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
			}
			if err != nil {
				return nil, err
			}
			items := list.Items
			sort.Slice(items, func(i, j int) bool {
				if items[i].GetNamespace() != items[j].GetNamespace() {
					return items[i].GetNamespace() < items[j].GetNamespace()
				}
				return items[i].GetName() < items[j].GetName()
			})
			return items, nil
		})
}

// GetTopology reads one Topology.
func (c *Client) GetTopology(ctx context.Context, namespace, name string) (*unstructured.Unstructured, error) {
	return call(ctx, c, "k8s.get_topology", resourceAttrs(models.TopologyKind, namespace, name),
		func(ctx context.Context) (*unstructured.Unstructured, error) {
			return c.Dynamic.Resource(TopologyGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
		})
}

// CreateTopology creates obj in namespace. apiVersion and kind default to the clabernetes Topology.
func (c *Client) CreateTopology(ctx context.Context, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	prepareTopology(obj, namespace)
	return call(ctx, c, "k8s.create_topology", resourceAttrs(models.TopologyKind, namespace, obj.GetName()),
		func(ctx context.Context) (*unstructured.Unstructured, error) {
			return c.Dynamic.Resource(TopologyGVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
		})
}

// ReplaceTopology replaces the Topology name with obj. A missing resourceVersion is filled from
// the live object so whole-document edits from the console do not need to carry it; such edits
// are retried on conflict against the fresh resourceVersion. An explicit resourceVersion is sent
// as given and a conflict is returned.
func (c *Client) ReplaceTopology(ctx context.Context, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	prepareTopology(obj, namespace)
	obj.SetName(name)
	update := func() (*unstructured.Unstructured, error) {
		return call(ctx, c, "k8s.replace_topology", resourceAttrs(models.TopologyKind, namespace, name),
			func(ctx context.Context) (*unstructured.Unstructured, error) {
				return c.Dynamic.Resource(TopologyGVR).Namespace(namespace).Update(ctx, obj, metav1.UpdateOptions{})
			})
	}
	if obj.GetResourceVersion() != "" {
		return update()
	}

	var updated *unstructured.Unstructured
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := c.GetTopology(ctx, namespace, name)
		if err != nil {
			return err
		}
		obj.SetResourceVersion(current.GetResourceVersion())
		updated, err = update()
		return err
	})
	return updated, err
}

// DeleteTopology deletes a Topology; clabernetes garbage-collects the objects it owns.
func (c *Client) DeleteTopology(ctx context.Context, namespace, name string) error {
	_, err := call(ctx, c, "k8s.delete_topology", resourceAttrs(models.TopologyKind, namespace, name),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.Dynamic.Resource(TopologyGVR).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		})
	return err
}

func prepareTopology(obj *unstructured.Unstructured, namespace string) {
	if obj.GetAPIVersion() == "" {
		obj.SetAPIVersion(TopologyGVR.GroupVersion().String())
	}
	if obj.GetKind() == "" {
		obj.SetKind(models.TopologyKind)
	}
	obj.SetNamespace(namespace)
}

// ListNamespaces returns namespace names, sorted.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	return call(ctx, c, "k8s.list_namespaces", nil, func(ctx context.Context) ([]string, error) {
		list, err := c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, ns := range list.Items {
			names = append(names, ns.Name)
		}
		sort.Strings(names)
		return names, nil
	})
}

// ListSecrets returns secret names in namespace, sorted. With pullSecretsOnly only
// kubernetes.io/dockerconfigjson secrets are returned.
func (c *Client) ListSecrets(ctx context.Context, namespace string, pullSecretsOnly bool) ([]string, error) {
	return call(ctx, c, "k8s.list_secrets", resourceAttrs("Secret", namespace, ""),
		func(ctx context.Context) ([]string, error) {
			opts := metav1.ListOptions{}
			if pullSecretsOnly {
				opts.FieldSelector = fields.OneTermEqualSelector("type", string(corev1.SecretTypeDockerConfigJson)).String()
			}
			list, err := c.Clientset.CoreV1().Secrets(namespace).List(ctx, opts)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(list.Items))
			for _, s := range list.Items {
				// not every client honors field selectors
				if pullSecretsOnly && s.Type != corev1.SecretTypeDockerConfigJson {
					continue
				}
				names = append(names, s.Name)
			}
			sort.Strings(names)
			return names, nil
		})
}
