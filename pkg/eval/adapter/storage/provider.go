package storage

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// ConnectionFactory creates a connection of one storage type from its decoded configuration.
type ConnectionFactory func(cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// Provider is the StorageProvider shared by all adapter types. It decodes the named
// configuration, checks its type and caches the created connection.
type Provider struct {
	providerType string
	cfg          *coreConfig.Config
	factory      ConnectionFactory
	connections  map[string]StorageConnection
	mu           sync.RWMutex
}

// Verify that Provider implements the StorageProvider interface.
var _ StorageProvider = (*Provider)(nil)

// NewProvider creates a Provider for connections of providerType.
func NewProvider(providerType string, cfg *coreConfig.Config, factory ConnectionFactory) *Provider {
	return &Provider{
		providerType: providerType,
		cfg:          cfg,
		factory:      factory,
		connections:  make(map[string]StorageConnection),
	}
}

// GetConnection retrieves a StorageConnection by the given name.
// It creates a new connection if one does not already exist for the given name.
func (p *Provider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring lock
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := storageConfig.Lookup(p.cfg.PVTruth.AdapterConfigs, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.providerType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.providerType, storageCfg.Type)
	}

	newConn, err := p.factory(storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter for '%s': %w", p.providerType, name, err)
	}

	p.connections[name] = newConn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, name)
	return newConn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.providerType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Type returns the storage type handled by this provider.
func (p *Provider) Type() string {
	return p.providerType
}

// ForceReconnect closes and re-creates the named connection.
func (p *Provider) ForceReconnect(name string) (StorageConnection, error) {
	p.mu.Lock()
	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to gracefully close %s storage connection '%s' during force reconnect: %v", p.providerType, name, err)
		}
		delete(p.connections, name)
	}
	p.mu.Unlock()

	logger.Debugf("Forcing reconnect for %s storage connection '%s'.", p.providerType, name)
	return p.GetConnection(name)
}
