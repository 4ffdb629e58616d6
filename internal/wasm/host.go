package wasm

import "github.com/wasmi-project/wasmi/api"

// HostModule is a named collection of host functions a guest module can
// import from, grounded on the teacher's module-builder shape but reduced
// to the literal host contract of §6: a host function is exactly
// api.HostFunction, nothing more.
type HostModule struct {
	name      string
	functions map[string]api.HostFunction
}

// NewHostModule returns an empty HostModule registered under name (the
// guest's import module string).
func NewHostModule(name string) *HostModule {
	return &HostModule{name: name, functions: map[string]api.HostFunction{}}
}

// Name returns the module name guests import this host module by.
func (h *HostModule) Name() string { return h.name }

// ExportFunction registers fn under name, so an import of (h.Name(), name)
// resolves to it.
func (h *HostModule) ExportFunction(name string, fn api.HostFunction) *HostModule {
	h.functions[name] = fn
	return h
}

// Lookup resolves a (module, name) import pair against this single host
// module, matching HostModule's own name first.
func (h *HostModule) Lookup(module, name string) (api.HostFunction, bool) {
	if module != h.name {
		return nil, false
	}
	fn, ok := h.functions[name]
	return fn, ok
}

// HostModules is a set of HostModule registries searched in order; its
// Lookup method is the resolveImport callback Instantiate expects.
type HostModules []*HostModule

func (hs HostModules) Lookup(module, name string) (api.HostFunction, bool) {
	for _, h := range hs {
		if fn, ok := h.Lookup(module, name); ok {
			return fn, true
		}
	}
	return nil, false
}
