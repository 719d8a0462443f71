package bridge

import "testing"

func TestNewListenerRequiresForwarder(t *testing.T) {
	_, err := NewListener(ListenerConfig{
		DSN:           "postgres://localhost/lager?sslmode=disable",
		NotifyChannel: "beholdning_changes",
	})
	if err == nil {
		t.Fatal("expected error for missing forwarder")
	}
}
