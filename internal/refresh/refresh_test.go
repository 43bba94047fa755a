package refresh

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

const manifestYAML = `
apiVersion: batch/v1
kind: Job
metadata:
  name: vlan-refresh
spec:
  template:
    spec:
      restartPolicy: Never
      containers:
        - name: refresh
          image: example/vlan-refresh:latest
`

func writeManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(path, []byte(manifestYAML), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func TestStartRefresh_AppendsSuffixAndSubmits(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	o := New(clientset, "kube-system", writeManifest(t))

	runName, err := o.StartRefresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(runName, "vlan-refresh-") {
		t.Fatalf("expected run name to start with base name, got %s", runName)
	}
	if len(runName) != len("vlan-refresh-")+6 {
		t.Fatalf("expected 6-character suffix, got run name %q", runName)
	}

	job, err := clientset.BatchV1().Jobs("kube-system").Get(context.Background(), runName, metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected job to be created: %v", err)
	}
	if job.Namespace != "kube-system" {
		t.Errorf("expected namespace kube-system, got %s", job.Namespace)
	}
}

func TestStartRefresh_DistinctRunNamesAcrossCalls(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	o := New(clientset, "kube-system", writeManifest(t))

	first, err := o.StartRefresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.StartRefresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct run names across calls")
	}
}

func TestGetRefresh_Running(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "vlan-refresh-abc123", Namespace: "kube-system"},
	})
	o := New(clientset, "kube-system", "")

	detail, err := o.GetRefresh(context.Background(), "vlan-refresh-abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Status != StatusRunning {
		t.Errorf("expected Running, got %s", detail.Status)
	}
}

func TestGetRefresh_Succeeded(t *testing.T) {
	now := metav1.NewTime(time.Now())
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "vlan-refresh-xyz", Namespace: "kube-system"},
		Status:     batchv1.JobStatus{CompletionTime: &now},
	})
	o := New(clientset, "kube-system", "")

	detail, err := o.GetRefresh(context.Background(), "vlan-refresh-xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Status != StatusSucceeded {
		t.Errorf("expected Succeeded, got %s", detail.Status)
	}
}

func TestGetRefresh_Failed(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "vlan-refresh-bad", Namespace: "kube-system"},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{
				{Type: batchv1.JobFailed, Status: corev1.ConditionTrue},
			},
		},
	})
	o := New(clientset, "kube-system", "")

	detail, err := o.GetRefresh(context.Background(), "vlan-refresh-bad")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Status != StatusFailed {
		t.Errorf("expected Failed, got %s", detail.Status)
	}
}

func TestGetRefresh_FindsMatchingPod(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(
		&batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "vlan-refresh-pod1", Namespace: "kube-system"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "vlan-refresh-pod1-9f8x2", Namespace: "kube-system"}},
	)
	o := New(clientset, "kube-system", "")

	detail, err := o.GetRefresh(context.Background(), "vlan-refresh-pod1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.PodName != "vlan-refresh-pod1-9f8x2" {
		t.Errorf("expected to find matching pod, got %q", detail.PodName)
	}
}
