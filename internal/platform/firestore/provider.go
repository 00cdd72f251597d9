package firestore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

const defaultDialTimeout = 10 * time.Second

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns a lazily created, shared Firestore client.
type Provider struct {
	projectID   string
	databaseID  string
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises Provider behaviour.
type ProviderOption func(*Provider)

// WithDialTimeout overrides the timeout used when creating the client.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends client options applied during initialisation.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// WithDatabaseID selects a non-default Firestore database.
func WithDatabaseID(id string) ProviderOption {
	return func(p *Provider) {
		p.databaseID = strings.TrimSpace(id)
	}
}

// NewProvider constructs a Provider for the given project.
func NewProvider(projectID string, opts ...ProviderOption) *Provider {
	provider := &Provider{
		projectID:   strings.TrimSpace(projectID),
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

// Client returns the shared Firestore client, creating it on first use.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if ctx == nil {
		return nil, errors.New("firestore: context is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}
	if p.projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	var (
		client *firestore.Client
		err    error
	)
	if p.databaseID != "" {
		client, err = firestore.NewClientWithDatabase(dialCtx, p.projectID, p.databaseID, p.clientOpts...)
	} else {
		client, err = firestore.NewClient(dialCtx, p.projectID, p.clientOpts...)
	}
	if err != nil {
		return nil, WrapError("firestore.dial", err)
	}
	p.client = client
	return client, nil
}

// Close releases the underlying client. Subsequent calls are no-ops.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
