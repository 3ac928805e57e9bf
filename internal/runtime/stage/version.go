package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
)

var readBuildInfo = debug.ReadBuildInfo

// Fingerprint derives an eight character version from the stage's identity
// (the package path and type name, or for Func the function symbol) and the
// build that contains it, so rebuilding from another revision changes it.
func Fingerprint(s Stage) string {
	sum := sha256.Sum224([]byte(identity(s) + "\n" + buildIdentity()))
	full := hex.EncodeToString(sum[:])
	return full[len(full)-8:]
}

// buildIdentity describes the running binary: main module path and version
// plus the VCS revision and dirty flag when the toolchain recorded them.
func buildIdentity() string {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(info.Main.Path)
	b.WriteString("@")
	b.WriteString(info.Main.Version)
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision", "vcs.modified":
			b.WriteString(" ")
			b.WriteString(setting.Key)
			b.WriteString("=")
			b.WriteString(setting.Value)
		}
	}
	return b.String()
}

// ProcessName returns a short, human readable name for the stage type.
func ProcessName(s Stage) string {
	id := identity(s)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return id
}

func identity(s Stage) string {
	if s == nil {
		return "<nil>"
	}
	if f, ok := s.(Func); ok && f != nil {
		if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
			return fn.Name()
		}
	}
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// IsNil reports whether s is nil or holds a nil pointer, map, slice, channel
// or func, none of which can execute.
func IsNil(s Stage) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
