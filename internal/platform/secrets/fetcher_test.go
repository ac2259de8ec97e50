package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeAccessClient) Close() error { return nil }

func newTestFetcher(t *testing.T, client accessClient, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithClient(client), WithFallbackFile("")}, opts...)
	fetcher, err := NewFetcher(context.Background(), "kirana-test", opts...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return fetcher
}

func TestResolveSecretShortReference(t *testing.T) {
	client := &fakeAccessClient{values: map[string]string{
		"projects/kirana-test/secrets/razorpay-key/versions/latest": "rzp-secret",
	}}
	fetcher := newTestFetcher(t, client)

	value, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay-key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "rzp-secret" {
		t.Errorf("value = %q, want rzp-secret", value)
	}
}

func TestResolveSecretFullResourceAndVersionPin(t *testing.T) {
	client := &fakeAccessClient{values: map[string]string{
		"projects/other/secrets/razorpay-key/versions/7":            "v7",
		"projects/kirana-test/secrets/razorpay-key/versions/3":      "v3",
		"projects/kirana-test/secrets/razorpay-key/versions/latest": "latest",
	}}
	fetcher := newTestFetcher(t, client)

	value, err := fetcher.ResolveSecret(context.Background(), "secret://projects/other/secrets/razorpay-key/versions/7")
	if err != nil {
		t.Fatalf("ResolveSecret full resource: %v", err)
	}
	if value != "v7" {
		t.Errorf("value = %q, want v7", value)
	}

	value, err = fetcher.ResolveSecret(context.Background(), "secret://razorpay-key@3")
	if err != nil {
		t.Fatalf("ResolveSecret pinned version: %v", err)
	}
	if value != "v3" {
		t.Errorf("value = %q, want v3", value)
	}
}

func TestResolveSecretCachesUntilInvalidated(t *testing.T) {
	client := &fakeAccessClient{values: map[string]string{
		"projects/kirana-test/secrets/razorpay-key/versions/latest": "cached",
	}}
	fetcher := newTestFetcher(t, client)

	for i := 0; i < 3; i++ {
		if _, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay-key"); err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
	}
	if client.calls != 1 {
		t.Errorf("client calls = %d, want 1 (cache hit)", client.calls)
	}

	fetcher.Invalidate("secret://razorpay-key")
	if _, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay-key"); err != nil {
		t.Fatalf("ResolveSecret after invalidate: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("client calls = %d, want refetch after invalidate", client.calls)
	}
}

func TestResolveSecretFallsBackToLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	content := "secret://razorpay-key=local-value\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &fakeAccessClient{err: status.Error(codes.PermissionDenied, "denied")}
	fetcher := newTestFetcher(t, client, WithFallbackFile(path))

	value, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay-key")
	if err != nil {
		t.Fatalf("ResolveSecret with fallback: %v", err)
	}
	if value != "local-value" {
		t.Errorf("value = %q, want local-value", value)
	}
}

func TestResolveSecretRejectsUnknownScheme(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeAccessClient{})
	if _, err := fetcher.ResolveSecret(context.Background(), "vault://razorpay-key"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
