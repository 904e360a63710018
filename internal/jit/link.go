package jit

/*
#include <dlfcn.h>
#include <stdlib.h>
#include <stdint.h>

typedef int64_t (*tilt_fn0)(void);
typedef int64_t (*tilt_fn1)(int64_t);
typedef int64_t (*tilt_fn2)(int64_t, int64_t);
typedef int64_t (*tilt_fn3)(int64_t, int64_t, int64_t);
typedef int64_t (*tilt_fn4)(int64_t, int64_t, int64_t, int64_t);

static int64_t tilt_call(void *fp, int64_t *args, int n) {
	switch (n) {
	case 0:
		return ((tilt_fn0)fp)();
	case 1:
		return ((tilt_fn1)fp)(args[0]);
	case 2:
		return ((tilt_fn2)fp)(args[0], args[1]);
	case 3:
		return ((tilt_fn3)fp)(args[0], args[1], args[2]);
	case 4:
		return ((tilt_fn4)fp)(args[0], args[1], args[2], args[3]);
	default:
		return 0;
	}
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"tilt/internal/diag"
)

// nativeHandle wraps a dlopen'd shared object. This is the one place a real
// native function pointer, rather than an IR tree, is invoked -- the whole
// reason internal/jit exists as a second engine (spec §2, §4.3).
type nativeHandle struct {
	handle unsafe.Pointer
}

func dlopenLib(path string) (*nativeHandle, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	h := C.dlopen(cpath, C.RTLD_NOW)
	if h == nil {
		return nil, diag.New(diag.HostABIError, "jit: dlopen %q failed: %s", path, C.GoString(C.dlerror()))
	}
	return &nativeHandle{handle: h}, nil
}

func (h *nativeHandle) sym(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.dlerror() // clear any pending error
	s := C.dlsym(h.handle, cname)
	if s == nil {
		if errStr := C.dlerror(); errStr != nil {
			return nil, diag.New(diag.HostABIError, "jit: dlsym %q failed: %s", name, C.GoString(errStr))
		}
	}
	return s, nil
}

func (h *nativeHandle) close() error {
	if C.dlclose(h.handle) != 0 {
		return fmt.Errorf("jit: dlclose failed: %s", C.GoString(C.dlerror()))
	}
	return nil
}

// maxNativeArgs is the widest tilt_fnN trampoline declared above. Callers
// must check arity against this before calling callNative -- the C shim's
// default case returns 0 rather than erroring, which would otherwise turn
// a 5+-argument call into a silently wrong result instead of a reported one.
const maxNativeArgs = 4

// callNative invokes fp (a real native function pointer obtained from
// dlsym) with up to maxNativeArgs 64-bit integer arguments and returns its
// 64-bit integer result, truncated by the caller to the function's
// declared return type.
func callNative(fp unsafe.Pointer, args []int64) int64 {
	if len(args) == 0 {
		return int64(C.tilt_call(fp, nil, 0))
	}
	return int64(C.tilt_call(fp, (*C.int64_t)(unsafe.Pointer(&args[0])), C.int(len(args))))
}
