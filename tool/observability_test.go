package tool

import (
	"context"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu  sync.Mutex
	got []InvokeObservation
}

func (o *recordingObserver) ObserveInvoke(observation InvokeObservation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, observation)
}

func TestInvokeEmitsObservations(t *testing.T) {
	observer := &recordingObserver{}
	SetObserver(observer)
	defer SetObserver(nil)

	r := NewRegistry()
	if err := r.Register(echoDescriptor("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, _ = r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	_, _ = r.Invoke(context.Background(), "missing", nil)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.got) != 2 {
		t.Fatalf("observations = %d, want 2", len(observer.got))
	}
	if !observer.got[0].Success || observer.got[0].ToolName != "echo" {
		t.Fatalf("first observation = %#v", observer.got[0])
	}
	if observer.got[1].Success || observer.got[1].ErrorCode != ToolErrorCodeUnknownTool {
		t.Fatalf("second observation = %#v", observer.got[1])
	}
}
