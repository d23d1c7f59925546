package modelsync

import (
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type testFire struct {
	key  int64
	args string
}

type testFireLog struct {
	stateLock sync.Mutex
	fires     []testFire
}

func (self *testFireLog) fire(key int64, args string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.fires = append(self.fires, testFire{key: key, args: args})
}

func (self *testFireLog) get() []testFire {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return append([]testFire{}, self.fires...)
}

func TestDebounceTrailingEdge(t *testing.T) {
	fireLog := &testFireLog{}
	debouncer := NewDebouncer[int64, string](50*time.Millisecond, fireLog.fire)
	defer debouncer.Close()

	debouncer.Call(1, "a")
	debouncer.Call(1, "b")
	debouncer.Call(2, "x")
	debouncer.Call(1, "c")
	assert.Equal(t, debouncer.Pending(), 2)
	assert.Equal(t, len(fireLog.get()), 0)

	for i := 0; i < 100 && debouncer.Pending() != 0; i += 1 {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	fires := fireLog.get()
	assert.Equal(t, len(fires), 2)
	byKey := map[int64]string{}
	for _, f := range fires {
		byKey[f.key] = f.args
	}
	assert.Equal(t, byKey, map[int64]string{1: "c", 2: "x"})
}

func TestDebounceFlush(t *testing.T) {
	fireLog := &testFireLog{}
	debouncer := NewDebouncer[int64, string](time.Hour, fireLog.fire)
	defer debouncer.Close()

	debouncer.Call(1, "a")
	debouncer.Call(1, "b")
	debouncer.Flush()

	assert.Equal(t, fireLog.get(), []testFire{{key: 1, args: "b"}})
	assert.Equal(t, debouncer.Pending(), 0)

	debouncer.Flush()
	assert.Equal(t, len(fireLog.get()), 1)
}

func TestDebounceClose(t *testing.T) {
	fireLog := &testFireLog{}
	debouncer := NewDebouncer[int64, string](10*time.Millisecond, fireLog.fire)

	debouncer.Call(1, "a")
	debouncer.Close()
	debouncer.Call(2, "b")
	assert.Equal(t, debouncer.Pending(), 0)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, len(fireLog.get()), 0)
}
