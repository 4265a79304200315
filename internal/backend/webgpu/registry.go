package webgpu

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/tensor"
)

// moduleKey identifies a compiled kernel module.
type moduleKey struct {
	dtype  tensor.DataType
	module string
}

func (k moduleKey) String() string {
	return k.module + "/" + k.dtype.String()
}

// registry caches kernel modules keyed by (element type, module name).
//
// Modules are loaded on first use through load and shared read-only
// afterwards. Loading is check-then-load under the registry lock, so
// concurrent first uses of the same key load it once. Failed loads are not
// cached.
type registry[M any] struct {
	load func(key moduleKey) (M, error)

	mu      sync.RWMutex
	modules map[moduleKey]M
}

func newRegistry[M any](load func(key moduleKey) (M, error)) *registry[M] {
	return &registry[M]{
		load:    load,
		modules: make(map[moduleKey]M),
	}
}

// Has reports whether the module is loaded.
func (r *registry[M]) Has(dtype tensor.DataType, module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[moduleKey{dtype, module}]
	return ok
}

// EnsureLoaded loads the module unless it is already cached.
func (r *registry[M]) EnsureLoaded(dtype tensor.DataType, module string) error {
	_, err := r.Get(dtype, module)
	return err
}

// Get returns the module, loading it first if needed.
func (r *registry[M]) Get(dtype tensor.DataType, module string) (M, error) {
	key := moduleKey{dtype, module}

	r.mu.RLock()
	m, ok := r.modules[key]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[key]; ok {
		return m, nil
	}
	m, err := r.load(key)
	if err != nil {
		var zero M
		if errors.Is(err, ErrUnsupportedDType) {
			return zero, err
		}
		return zero, errors.Wrapf(ErrKernelLoad, "%s: %v", key, err)
	}
	klog.V(1).Infof("webgpu: loaded kernel module %s", key)
	r.modules[key] = m
	return m, nil
}

// Len returns the number of cached modules.
func (r *registry[M]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Drain removes every module, handing each to release.
func (r *registry[M]) Drain(release func(M)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, m := range r.modules {
		release(m)
		delete(r.modules, key)
	}
}
