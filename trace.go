// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

var pkgPrefix = reflect.TypeFor[Handle]().PkgPath() + "."

// dispatchPrefix names the runtime's command dispatch frames. A trace
// is cut at the first of them.
var dispatchPrefix = pkgPrefix + "(*Runtime)."

// callers captures up to depth frames above its caller, skipping skip
// additional frames.
func callers(skip, depth int) []string {
	if depth <= 0 {
		depth = DefaultTraceDepth
	}
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, f.Function+" ("+f.File+":"+strconv.Itoa(f.Line)+")")
		if !more {
			break
		}
	}
	return out
}

func frameFunc(line string) string {
	if i := strings.Index(line, " ("); i >= 0 {
		return line[:i]
	}
	return line
}

// trimTrace drops this package's frames and cuts everything from the
// runtime's dispatch onward, leaving only the caller-relevant frames.
func trimTrace(lines []string) []string {
	var out []string
	for _, l := range lines {
		fn := frameFunc(l)
		if strings.HasPrefix(fn, dispatchPrefix) {
			break
		}
		if strings.HasPrefix(fn, pkgPrefix) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// panicTrace captures the stack of a panic from inside its deferred
// recover, starting at the panicking frame.
func panicTrace(depth int) []string {
	lines := callers(1, depth+8)
	for i, l := range lines {
		if frameFunc(l) == "runtime.gopanic" {
			lines = lines[i+1:]
			break
		}
	}
	for len(lines) > 0 && strings.HasPrefix(frameFunc(lines[0]), "runtime.") {
		lines = lines[1:]
	}
	return trimTrace(lines)
}

// localTrace captures the caller's frames for the local half of a
// cross-boundary trace.
func localTrace(depth int) []string {
	var out []string
	for _, l := range callers(1, depth) {
		if !strings.HasPrefix(frameFunc(l), pkgPrefix) {
			out = append(out, l)
		}
	}
	return out
}
