package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID":          "kirana-test",
			"SHIPPING_FREE_THRESHOLD_PAISE": "59900",
			"SHIPPING_FLAT_FEE_PAISE":       "4900",
			"SERVER_READ_TIMEOUT":           "5s",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Shipping.FreeThresholdPaise != 59900 || cfg.Shipping.FlatFeePaise != 4900 {
		t.Errorf("shipping policy = %+v, want 59900/4900", cfg.Shipping)
	}
	if cfg.Shipping.Currency != "INR" {
		t.Errorf("Currency = %q, want INR", cfg.Shipping.Currency)
	}
	if cfg.PubSub.ProjectID != "kirana-test" {
		t.Errorf("PubSub project = %q, want fallback to firestore project", cfg.PubSub.ProjectID)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Errorf("Idempotency.Header = %q", cfg.Idempotency.Header)
	}
}

func TestLoadEnvFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "FIRESTORE_PROJECT_ID=from-file\nPORT=9090\n# comment\nRAZORPAY_KEY_ID=\"rzp_test_abc\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(path),
		WithEnvMap(map[string]string{"PORT": "7070"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "from-file" {
		t.Errorf("ProjectID = %q, want from-file", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("Port = %q, explicit map should win over file", cfg.Server.Port)
	}
	if cfg.Razorpay.KeyID != "rzp_test_abc" {
		t.Errorf("KeyID = %q, quotes should be stripped", cfg.Razorpay.KeyID)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error for missing project id")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if len(verr.Fields()) == 0 {
		t.Error("ValidationError.Fields() is empty")
	}
}

func TestLoadResolvesSecretReference(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/razorpay-key/versions/latest" {
			t.Errorf("unexpected secret ref %q", ref)
		}
		return "  plain-secret  ", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID": "kirana-test",
			"RAZORPAY_KEY_SECRET":  "secret://projects/p/secrets/razorpay-key/versions/latest",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Razorpay.KeySecret != "plain-secret" {
		t.Errorf("KeySecret = %q, want resolved and trimmed value", cfg.Razorpay.KeySecret)
	}
}

func TestLoadSecretReferenceWithoutResolver(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID": "kirana-test",
			"RAZORPAY_KEY_SECRET":  "secret://projects/p/secrets/razorpay-key/versions/latest",
		}),
	)
	if err == nil {
		t.Fatal("expected error when secret reference has no resolver")
	}
}
