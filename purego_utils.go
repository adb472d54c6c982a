//go:build (darwin || linux) && !noh264

package screenrec

import (
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/adrg/xdg"
)

// maxNativeMessage bounds how far cString scans for the terminator.
const maxNativeMessage = 1024

// cString copies a NUL-terminated message owned by a native library.
func cString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	n := 0
	for n < maxNativeMessage && *(*byte)(unsafe.Add(unsafe.Pointer(ptr), n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

// sharedLibName returns the platform file name for lib, e.g.
// libmedia_h264.so or libmedia_h264.dylib.
func sharedLibName(lib string) string {
	if runtime.GOOS == "darwin" {
		return lib + ".dylib"
	}
	return lib + ".so"
}

// nativeLibPaths lists the places lib is looked up, in priority order.
// fileEnv names a variable holding the full library path, dirEnvs name
// variables holding directories.
func nativeLibPaths(lib, fileEnv string, dirEnvs ...string) []string {
	name := sharedLibName(lib)
	var paths []string

	if p := os.Getenv(fileEnv); p != "" {
		paths = append(paths, p)
	}
	for _, env := range dirEnvs {
		if dir := os.Getenv(env); dir != "" {
			paths = append(paths, filepath.Join(dir, name))
		}
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs, dir, filepath.Join(dir, "..", "lib"))
	}
	dirs = append(dirs, filepath.Join(xdg.DataHome, "screenrec", "lib"))
	for _, root := range []string{sourceDir(), moduleDir()} {
		if root != "" {
			dirs = append(dirs, filepath.Join(root, "build"), filepath.Join(root, "build", "ffi"))
		}
	}
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, name))
	}

	// Bare name last so the dynamic loader's own search applies.
	paths = append(paths, "/usr/local/lib/"+name)
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, "/opt/homebrew/lib/"+name)
	case "linux":
		paths = append(paths, "/usr/lib/"+name)
	}
	return append(paths, name)
}

func sourceDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

// moduleDir walks up from the working directory to the nearest go.mod.
func moduleDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
