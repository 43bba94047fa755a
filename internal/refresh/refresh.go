// Package refresh submits and observes the one-shot reconciliation job that
// repopulates the allocation store from the cloud provider's inventory.
package refresh

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"
)

const tailLines = 500

// Status is the aggregated state of a refresh run.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// Detail is the response to GetRefresh.
type Detail struct {
	Status      Status
	StartedAt   *metav1.Time
	CompletedAt *metav1.Time
	PodName     string
	Logs        string
}

// Orchestrator submits and inspects refresh Jobs in a single namespace.
type Orchestrator struct {
	clientset    kubernetes.Interface
	namespace    string
	manifestPath string
}

// New builds an Orchestrator. manifestPath points at a YAML Job document on
// disk; the orchestrator mutates only its metadata name (appended suffix)
// and namespace before submission.
func New(clientset kubernetes.Interface, namespace, manifestPath string) *Orchestrator {
	return &Orchestrator{clientset: clientset, namespace: namespace, manifestPath: manifestPath}
}

// StartRefresh loads the job manifest, assigns it a unique run name, submits
// it, and returns that run name.
func (o *Orchestrator) StartRefresh(ctx context.Context) (string, error) {
	data, err := os.ReadFile(o.manifestPath)
	if err != nil {
		return "", fmt.Errorf("refresh: reading manifest: %w", err)
	}

	var job batchv1.Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return "", fmt.Errorf("refresh: parsing manifest: %w", err)
	}

	suffix, err := randomHexSuffix(6)
	if err != nil {
		return "", fmt.Errorf("refresh: generating run suffix: %w", err)
	}

	baseName := job.Name
	if baseName == "" {
		baseName = job.GenerateName
	}
	job.Name = baseName + "-" + suffix
	job.Namespace = o.namespace

	created, err := o.clientset.BatchV1().Jobs(o.namespace).Create(ctx, &job, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("refresh: submitting job: %w", err)
	}
	return created.Name, nil
}

// GetRefresh reports the aggregated status of a previously started run,
// along with the matching pod's name and recent logs (best-effort).
func (o *Orchestrator) GetRefresh(ctx context.Context, runName string) (*Detail, error) {
	job, err := o.clientset.BatchV1().Jobs(o.namespace).Get(ctx, runName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("refresh: fetching job %s: %w", runName, err)
	}

	detail := &Detail{
		Status:      statusOf(job),
		StartedAt:   job.Status.StartTime,
		CompletedAt: job.Status.CompletionTime,
	}

	podName := o.findPod(ctx, runName)
	detail.PodName = podName
	if podName != "" {
		logs, err := o.fetchLogs(ctx, podName)
		if err != nil {
			// Log retrieval failure never fails the operation.
			log.Printf("refresh: fetching logs for %s: %v", podName, err)
		} else {
			detail.Logs = logs
		}
	}
	return detail, nil
}

func statusOf(job *batchv1.Job) Status {
	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
			return StatusFailed
		}
	}
	if job.Status.CompletionTime != nil {
		return StatusSucceeded
	}
	return StatusRunning
}

func (o *Orchestrator) findPod(ctx context.Context, runName string) string {
	pods, err := o.clientset.CoreV1().Pods(o.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return ""
	}
	for _, pod := range pods.Items {
		if strings.Contains(pod.Name, runName) {
			return pod.Name
		}
	}
	return ""
}

func (o *Orchestrator) fetchLogs(ctx context.Context, podName string) (string, error) {
	tail := int64(tailLines)
	req := o.clientset.CoreV1().Pods(o.namespace).GetLogs(podName, &corev1.PodLogOptions{TailLines: &tail})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func randomHexSuffix(n int) (string, error) {
	b := make([]byte, n/2+n%2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}
