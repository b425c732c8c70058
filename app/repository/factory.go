package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory builds the repositories for one database handle exactly once.
type Factory struct {
	db    *gorm.DB
	once  sync.Once
	repos *Repositories
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns the shared repository set.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() { f.repos = NewRepositories(f.db) })
	return f.repos
}

var (
	globalMu      sync.RWMutex
	globalFactory *Factory
)

// InitializeFactory installs the process wide factory; later calls are ignored.
func InitializeFactory(db *gorm.DB) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewFactory(db)
	}
}

// GetGlobalFactory panics when InitializeFactory was not called.
func GetGlobalFactory() *Factory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory == nil {
		panic("repository factory not initialized, call InitializeFactory after database setup")
	}
	return globalFactory
}
