package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	refScheme           = "secret://"
	defaultFallbackPath = ".secrets.local"
)

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager with a
// process-local cache and an optional local fallback file for development.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Fetcher construction.
type Option func(*Fetcher, *[]option.ClientOption)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher, _ *[]option.ClientOption) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFallbackFile overrides the local fallback secrets file path.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher, _ *[]option.ClientOption) {
		f.fallbackPath = strings.TrimSpace(path)
	}
}

// WithClient injects a preconfigured Secret Manager client (used in tests).
func WithClient(client accessClient) Option {
	return func(f *Fetcher, _ *[]option.ClientOption) {
		f.client = client
	}
}

// WithClientOptions forwards Cloud client options during construction.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(_ *Fetcher, clientOpts *[]option.ClientOption) {
		*clientOpts = append(*clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher for the given default project. When the Secret
// Manager client cannot be constructed, the fetcher operates in fallback-only
// mode so local development keeps working without cloud credentials.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:       zap.NewNop(),
		projectID:    strings.TrimSpace(projectID),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	var clientOpts []option.ClientOption
	for _, opt := range opts {
		if opt != nil {
			opt(f, &clientOpts)
		}
	}

	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the underlying client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret resolves a secret:// reference to its payload. It implements
// config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	resource, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[resource]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if f.client != nil {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil {
			if resp == nil || resp.Payload == nil {
				return "", fmt.Errorf("secrets: empty payload for %s", resource)
			}
			value := string(resp.Payload.GetData())
			f.store(resource, value)
			return value, nil
		}
		if !fallbackEligible(err) {
			return "", fmt.Errorf("secrets: access %s: %w", resource, err)
		}
		f.logger.Debug("secrets: falling back to local file", zap.String("resource", resource), zap.Error(err))
	}

	value, ok := f.lookupFallback(ref, resource)
	if !ok {
		return "", fmt.Errorf("secrets: no value available for %s", resource)
	}
	f.store(resource, value)
	return value, nil
}

// Invalidate drops the cached value so the next resolve refetches it.
func (f *Fetcher) Invalidate(ref string) {
	resource, err := f.resourceName(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, resource)
	f.mu.Unlock()
}

// resourceName expands short references (secret://name) to full version paths
// and accepts already-qualified references (secret://projects/.../versions/...).
func (f *Fetcher) resourceName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, refScheme) {
		return "", fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	path := strings.Trim(strings.TrimPrefix(trimmed, refScheme), "/")
	if path == "" {
		return "", errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(path, "projects/") {
		if !strings.Contains(path, "/versions/") {
			path += "/versions/latest"
		}
		return path, nil
	}
	if f.projectID == "" {
		return "", fmt.Errorf("secrets: project id required to resolve %q", ref)
	}
	name := path
	version := "latest"
	if idx := strings.Index(path, "@"); idx > 0 {
		name, version = path[:idx], path[idx+1:]
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}

func (f *Fetcher) store(resource, value string) {
	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(ref, resource string) (string, bool) {
	f.loadFallback()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if val, ok := f.fallbackVals[strings.TrimSpace(ref)]; ok {
		return val, true
	}
	val, ok := f.fallbackVals[resource]
	return val, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}
		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			return
		}
		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackErr = fmt.Errorf("secrets: open fallback file %s: %w", path, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			f.fallbackVals[key] = strings.TrimSpace(parts[1])
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
	})
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
