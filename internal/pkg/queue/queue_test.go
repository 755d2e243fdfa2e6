package queue

import (
	"context"
	"testing"
	"time"
)

func TestNewWithEmptyURLDisablesExtension(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Fatal("expected a disabled client for an empty redis URL")
	}
}

func TestEnqueueOnDisabledClientIsANoop(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Enqueue(context.Background(), Job{OptimizationID: "abc", NewFilePath: "optimized/x.jpg", AcceptedAt: time.Now()})
}

func TestCloseOnDisabledClientIsANoop(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Close()
}

func TestNewWithInvalidURLFails(t *testing.T) {
	if _, err := New("not-a-valid-url::"); err == nil {
		t.Fatal("expected an error for an invalid redis URL")
	}
}
