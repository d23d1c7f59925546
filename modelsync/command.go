package modelsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

type CommandOptions struct {
	// message bus key for success and error messages
	Key string
	// posted on success. When empty, a clear is posted instead.
	SuccessMessage string
	// do not post errors to the message bus
	SuppressError bool
}

type RequestFunction[A any] func(args A) *Request

type SuccessFunction[R any] func(data R)

// a read failed with a domain rejection where the caller needs an error
type FetchFailedError struct {
	Key       string
	ErrorData *ErrorData
}

func (self *FetchFailedError) Error() string {
	return fmt.Sprintf("%s failed: %s", self.Key, self.ErrorData.Message())
}

// Command wraps one endpoint with the uniform contract: execute, pending,
// success callbacks, and posting the outcome to the message bus.
// Concurrent executions are independent.
type Command[A any, R any] struct {
	api     *ModelApi
	bus     *MessageBus
	options CommandOptions
	request RequestFunction[A]

	pendingCount atomic.Int64

	successCallbacks *CallbackList[SuccessFunction[R]]

	stateLock sync.Mutex
	last      *FetchResult[R]
	closed    bool
}

func NewCommand[A any, R any](api *ModelApi, bus *MessageBus, options CommandOptions, request RequestFunction[A]) *Command[A, R] {
	return &Command[A, R]{
		api:              api,
		bus:              bus,
		options:          options,
		request:          request,
		successCallbacks: NewCallbackList[SuccessFunction[R]](),
	}
}

func (self *Command[A, R]) Key() string {
	return self.options.Key
}

// true strictly between dispatch and settle of at least one execution
func (self *Command[A, R]) Pending() bool {
	return 0 < self.pendingCount.Load()
}

func (self *Command[A, R]) OnSuccess(callback SuccessFunction[R]) func() {
	callbackId := self.successCallbacks.Add(callback)
	return func() {
		self.successCallbacks.Remove(callbackId)
	}
}

// the most recent settled result, nil while nothing has settled
func (self *Command[A, R]) Last() *FetchResult[R] {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.last
}

func (self *Command[A, R]) Execute(ctx context.Context, args A) (*FetchResult[R], error) {
	self.pendingCount.Add(1)
	defer self.pendingCount.Add(-1)

	request := self.request(args)
	result, err := Call[R](ctx, self.api, request)
	if err != nil {
		glog.Infof("[api]%s error = %s\n", self.options.Key, err)
		return nil, err
	}

	closed := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if !self.closed {
			self.last = result
		}
		return self.closed
	}()
	if closed {
		// the owning view was torn down. The result is returned but not surfaced.
		return result, nil
	}

	if result.Success {
		glog.V(1).Infof("[api]%s %s %s\n", self.options.Key, request.Method, request.Path)
		if self.options.SuccessMessage != "" {
			self.bus.EmitSuccess(self.options.Key, self.options.SuccessMessage)
		} else {
			self.bus.EmitClear(self.options.Key)
		}
		for _, successCallback := range self.successCallbacks.Get() {
			HandleError(func() {
				successCallback(result.Data)
			})
		}
	} else if !self.options.SuppressError {
		self.bus.EmitError(self.options.Key, result.ErrorData.Message())
	}
	return result, nil
}

// drops callback registrations. In flight executions still resolve.
func (self *Command[A, R]) Close() {
	self.stateLock.Lock()
	self.closed = true
	self.stateLock.Unlock()

	self.successCallbacks.Clear()
}
