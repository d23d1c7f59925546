package modelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang/glog"
)

// a panic raised with a canceled context is a normal way to unwind a session
func IsDoneError(r any) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, context.Canceled)
}

// runs `do` and recovers a panic into the handlers.
// handlers may be `func()` or `func(error)`
func HandleError(do func(), handlers ...any) (r any) {
	defer func() {
		r = recover()
		if r == nil {
			return
		}
		if !IsDoneError(r) {
			glog.Warningf("Unexpected error: %s\n", panicJson(r, debug.Stack()))
		}
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		for _, handler := range handlers {
			switch v := handler.(type) {
			case func():
				v()
			case func(error):
				v(err)
			}
		}
	}()
	do()
	return
}

// one log line with the panic value and its stack
func panicJson(r any, stack []byte) string {
	var frames []string
	for _, line := range strings.Split(string(stack), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			frames = append(frames, line)
		}
	}
	out, _ := json.Marshal(struct {
		Error string   `json:"error"`
		Stack []string `json:"stack"`
	}{
		Error: fmt.Sprintf("%T=%v", r, r),
		Stack: frames,
	})
	return string(out)
}

func Trace(tag string, do func()) {
	timed(tag, func() string {
		do()
		return ""
	})
}

func TraceWithReturnError[R any](tag string, do func() (R, error)) (result R, returnErr error) {
	timed(tag, func() string {
		result, returnErr = do()
		if returnErr != nil {
			return fmt.Sprintf(" err = %s", returnErr)
		}
		return fmt.Sprintf(" = %v", result)
	})
	return
}

func timed(tag string, do func() string) {
	start := time.Now()
	glog.Infof("[start]%s\n", tag)
	suffix := do()
	glog.Infof("[end]%s (%s)%s\n", tag, time.Since(start).Round(10*time.Microsecond), suffix)
}
