package config

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/duplexio/duplex/pkg/types"
)

// ReloadState represents the current state of the config reloader
type ReloadState string

const (
	// ReloadStateIdle indicates the reloader is idle
	ReloadStateIdle ReloadState = "idle"
	// ReloadStateReloading indicates a reload is in progress
	ReloadStateReloading ReloadState = "reloading"
	// ReloadStateStopped indicates the reloader is stopped
	ReloadStateStopped ReloadState = "stopped"
)

// ReloadCallback is a function that is called when configuration is reloaded
// The new config is passed as an argument, allowing the caller to apply it
type ReloadCallback func(ctx context.Context, newConfig *Config) error

// Reloader manages configuration reloading via SIGHUP signals
type Reloader struct {
	mu            sync.RWMutex
	configPath    string
	currentConfig *Config
	state         ReloadState
	signalChan    chan os.Signal
	reloadCtx     context.Context
	reloadCancel  context.CancelFunc
	started       bool
	callbacks     []ReloadCallback
}

// NewReloader creates a new config reloader
func NewReloader(configPath string, initialConfig *Config) *Reloader {
	ctx, cancel := context.WithCancel(context.Background())

	return &Reloader{
		configPath:    configPath,
		currentConfig: initialConfig,
		state:         ReloadStateIdle,
		signalChan:    make(chan os.Signal, 1),
		reloadCtx:     ctx,
		reloadCancel:  cancel,
		callbacks:     make([]ReloadCallback, 0),
	}
}

// OnReload registers a callback invoked after each successful reload
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start begins listening for SIGHUP signals to trigger config reload
func (r *Reloader) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	signal.Notify(r.signalChan, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-r.signalChan:
				if err := r.Reload(r.reloadCtx); err != nil {
					// Reload failures keep the previous configuration
					continue
				}
			case <-r.reloadCtx.Done():
				return
			}
		}
	}()
}

// Reload re-reads the configuration file and notifies all callbacks
func (r *Reloader) Reload(ctx context.Context) error {
	r.mu.Lock()
	if r.state == ReloadStateStopped {
		r.mu.Unlock()
		return types.NewError(types.ErrCodeUnavailable, "config reloader is stopped")
	}
	r.state = ReloadStateReloading
	path := r.configPath
	r.mu.Unlock()

	newConfig, err := LoadFromFile(path)

	r.mu.Lock()
	if err != nil {
		r.state = ReloadStateIdle
		r.mu.Unlock()
		return types.WrapError(types.ErrCodeInvalid, "config reload failed", err)
	}
	r.currentConfig = newConfig
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.state = ReloadStateIdle
	r.mu.Unlock()

	for _, cb := range callbacks {
		if cbErr := cb(ctx, newConfig); cbErr != nil {
			return types.WrapError(types.ErrCodeInternal, "config reload callback failed", cbErr)
		}
	}
	return nil
}

// Current returns the currently active configuration
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentConfig
}

// State returns the current reloader state
func (r *Reloader) State() ReloadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Stop stops the reloader and releases its signal handler
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ReloadStateStopped {
		return
	}
	r.state = ReloadStateStopped
	signal.Stop(r.signalChan)
	r.reloadCancel()
}
