package broker

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/opentrusty/pkibridge/internal/audit"
	"github.com/opentrusty/pkibridge/internal/certmanager"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) StoreSecret(ctx context.Context, secret *secretstore.SecretDTO) (secretstore.Metadata, error) {
	args := m.Called(ctx, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(secretstore.Metadata), args.Error(1)
}

func (m *mockStore) GetSecret(ctx context.Context, secretType secretstore.SecretType, meta secretstore.Metadata) (*secretstore.SecretDTO, error) {
	args := m.Called(ctx, secretType, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretstore.SecretDTO), args.Error(1)
}

func (m *mockStore) DeleteSecret(ctx context.Context, meta secretstore.Metadata) error {
	return m.Called(ctx, meta).Error(0)
}

func (m *mockStore) GenerateSymmetricKey(ctx context.Context, spec secretstore.KeySpec) (secretstore.Metadata, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(secretstore.Metadata), args.Error(1)
}

func (m *mockStore) GenerateAsymmetricKey(ctx context.Context, spec secretstore.KeySpec) (*secretstore.AsymmetricKeyMetadata, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretstore.AsymmetricKeyMetadata), args.Error(1)
}

func (m *mockStore) GenerateSupports(spec secretstore.KeySpec) bool {
	return m.Called(spec).Bool(0)
}

func (m *mockStore) StoreSecretSupports(spec secretstore.KeySpec) bool {
	return m.Called(spec).Bool(0)
}

type mockPlugin struct {
	mock.Mock
}

func (m *mockPlugin) lifecycle(ctx context.Context, name string, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	args := m.MethodCalled(name, ctx, orderID, orderMeta, pluginMeta, reqCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*certmanager.Result), args.Error(1)
}

func (m *mockPlugin) IssueCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	return m.lifecycle(ctx, "IssueCertificateRequest", orderID, orderMeta, pluginMeta, reqCtx)
}

func (m *mockPlugin) CheckCertificateStatus(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	return m.lifecycle(ctx, "CheckCertificateStatus", orderID, orderMeta, pluginMeta, reqCtx)
}

func (m *mockPlugin) CancelCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	return m.lifecycle(ctx, "CancelCertificateRequest", orderID, orderMeta, pluginMeta, reqCtx)
}

func (m *mockPlugin) ModifyCertificateRequest(ctx context.Context, orderID string, orderMeta certmanager.OrderMeta, pluginMeta certmanager.PluginMeta, reqCtx *certmanager.RequestContext) (*certmanager.Result, error) {
	return m.lifecycle(ctx, "ModifyCertificateRequest", orderID, orderMeta, pluginMeta, reqCtx)
}

func (m *mockPlugin) Supports(spec map[string]string) bool {
	return spec[certmanager.OrderCAType] == "" || spec[certmanager.OrderCAType] == certmanager.CATypeDogtag
}

func (m *mockPlugin) SupportedRequestTypes() []certmanager.RequestType {
	return []certmanager.RequestType{certmanager.RequestTypeCustom, certmanager.RequestTypeSimpleCMC}
}

func (m *mockPlugin) DefaultCAName() string { return "Test CA" }

// memSecrets is an in-memory SecretRepository
type memSecrets struct {
	mu    sync.Mutex
	items map[string]*Secret
}

func newMemSecrets() *memSecrets { return &memSecrets{items: map[string]*Secret{}} }

func (r *memSecrets) Create(_ context.Context, s *Secret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Metadata = s.Metadata.Clone()
	r.items[s.ID] = &cp
	return nil
}

func (r *memSecrets) GetByID(_ context.Context, id string) (*Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, ErrSecretNotFound
	}
	cp := *s
	cp.Metadata = s.Metadata.Clone()
	return &cp, nil
}

func (r *memSecrets) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrSecretNotFound
	}
	delete(r.items, id)
	return nil
}

// memOrders is an in-memory OrderRepository that snapshots on write
type memOrders struct {
	mu      sync.Mutex
	items   map[string]Order
	updates int
}

func newMemOrders() *memOrders { return &memOrders{items: map[string]Order{}} }

func snapshot(o *Order) Order {
	cp := *o
	cp.Meta = o.Meta.Clone()
	cp.PluginMeta = certmanager.PluginMeta{}
	for k, v := range o.PluginMeta {
		cp.PluginMeta[k] = v
	}
	return cp
}

func (r *memOrders) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[o.ID] = snapshot(o)
	return nil
}

func (r *memOrders) GetByID(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.items[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := snapshot(&o)
	return &cp, nil
}

func (r *memOrders) Update(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[o.ID]; !ok {
		return ErrOrderNotFound
	}
	r.items[o.ID] = snapshot(o)
	r.updates++
	return nil
}

// recordingAudit keeps audit events for assertions
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}
