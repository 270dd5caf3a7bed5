package federation

import (
	"context"
	"testing"
)

func TestHTTPPublicKeyResolver_RejectsNonPublicSource(t *testing.T) {
	r := NewHTTPPublicKeyResolver()
	_, err := r.ResolvePublicKey(context.Background(), "http://127.0.0.1:9999")
	if err == nil {
		t.Fatal("expected resolving a loopback source to fail the ssrf check")
	}
}
