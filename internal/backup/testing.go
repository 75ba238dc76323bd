package backup

import (
	"context"
	"testing"
)

// TestClient returns a client backed by an in-memory fake S3 server that is
// shut down when the test completes.
func TestClient(t testing.TB, bucket string) *Client {
	t.Helper()
	c, closeFn, err := NewInMemory(context.Background(), bucket)
	if err != nil {
		t.Fatalf("start fake S3: %v", err)
	}
	t.Cleanup(closeFn)
	return c
}
