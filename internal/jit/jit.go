package jit

import (
	"os"
	"os/exec"
	"path/filepath"

	"tilt/internal/diag"
	"tilt/internal/hostabi"
	"tilt/internal/ir"
	"tilt/internal/types"
	"tilt/internal/value"
)

// Engine runs a TILT module by compiling it to a native shared object via
// clang and invoking the result through a cgo dlopen/dlsym trampoline
// (spec §4.3). Its host ABI calls (alloc/free/print_i32) are compiled
// straight into the generated machine code as calls to libc; the engine
// itself never intercepts them in Go, unlike the VM's Simulated ABI.
type Engine struct {
	mod    *ir.Module
	dir    string
	handle *nativeHandle
}

// New compiles mod to a native shared object and loads it. clang must be on
// PATH; failures at either step come back as a HostABIError.
func New(mod *ir.Module) (*Engine, error) {
	lmod, err := build(mod)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "tiltc-jit-*")
	if err != nil {
		return nil, diag.New(diag.HostABIError, "jit: %v", err)
	}

	llPath := filepath.Join(dir, "module.ll")
	if err := os.WriteFile(llPath, []byte(lmod.String()), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, diag.New(diag.HostABIError, "jit: writing IR: %v", err)
	}

	soPath := filepath.Join(dir, "module.so")
	cmd := exec.Command("clang", "-x", "ir", "-shared", "-fPIC", "-o", soPath, llPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(dir)
		return nil, diag.New(diag.HostABIError, "jit: clang failed: %v\n%s", err, out)
	}

	handle, err := dlopenLib(soPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &Engine{mod: mod, dir: dir, handle: handle}, nil
}

// Close unloads the compiled module and removes its temporary build
// directory.
func (e *Engine) Close() error {
	defer os.RemoveAll(e.dir)
	return e.handle.close()
}

// Run invokes the named function with args through its real native
// function pointer.
func (e *Engine) Run(name string, args []value.Value) (value.Value, error) {
	fn := e.mod.FuncByName(name)
	if fn == nil {
		return value.Void, diag.New(diag.NameError, "no function named %q", name)
	}
	if len(args) != len(fn.Params) {
		return value.Void, diag.New(diag.TypeError, "%q: expected %d arguments, got %d", name, len(fn.Params), len(args))
	}
	if len(args) > maxNativeArgs {
		return value.Void, diag.New(diag.HostABIError, "%q: jit native trampoline supports at most %d arguments, got %d", name, maxNativeArgs, len(args))
	}
	fp, err := e.handle.sym(name)
	if err != nil {
		return value.Void, err
	}

	raw := make([]int64, len(args))
	for i, a := range args {
		raw[i] = a.AsInt64()
	}
	result := callNative(fp, raw)

	switch fn.RetType {
	case types.Void:
		return value.Void, nil
	case types.I32:
		return value.I32(int32(result)), nil
	case types.I64:
		return value.I64(result), nil
	case types.Ptr:
		return value.Ptr(uint64(result)), nil
	default:
		return value.Void, diag.New(diag.TypeError, "jit: unsupported return type %s", fn.RetType)
	}
}

// NativeABI returns a host ABI implementation backed by real process
// memory, like the memory the JIT-compiled machine code uses, for Go code
// that needs to work with native memory directly. The driver does not use
// it.
func NativeABI() hostabi.ABI {
	return hostabi.NewNative()
}
