package modelsync

import (
	"sync"
)

type MessageType string

const (
	MessageTypeSuccess MessageType = "success"
	MessageTypeError   MessageType = "error"
	MessageTypeClear   MessageType = "clear"
)

type Message struct {
	Key     string
	Type    MessageType
	Message string
}

type MessageScope int

const (
	// every key not claimed by a local subscription
	MessageScopeGlobal MessageScope = iota
	// one key, claimed away from global while subscribed
	MessageScopeLocal
)

type MessageFunction = func(message *Message)

// MessageBus broadcasts command feedback. A local subscription claims its key:
// while at least one local subscription for a key is open, global
// subscriptions do not see that key.
type MessageBus struct {
	stateLock sync.Mutex

	localKeyCounts map[string]int
	subscriptions  map[Id]*MessageSubscription
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		localKeyCounts: map[string]int{},
		subscriptions:  map[Id]*MessageSubscription{},
	}
}

func (self *MessageBus) Emit(message *Message) {
	var recipients []*MessageSubscription
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		claimed := 0 < self.localKeyCounts[message.Key]
		for _, subscription := range self.subscriptions {
			switch subscription.scope {
			case MessageScopeLocal:
				if subscription.key == message.Key {
					recipients = append(recipients, subscription)
				}
			default:
				if !claimed {
					recipients = append(recipients, subscription)
				}
			}
		}
	}()

	for _, subscription := range recipients {
		subscription.receive(message)
	}
}

func (self *MessageBus) EmitSuccess(key string, message string) {
	self.Emit(&Message{
		Key:     key,
		Type:    MessageTypeSuccess,
		Message: message,
	})
}

func (self *MessageBus) EmitError(key string, message string) {
	self.Emit(&Message{
		Key:     key,
		Type:    MessageTypeError,
		Message: message,
	})
}

func (self *MessageBus) EmitClear(key string) {
	self.Emit(&Message{
		Key:  key,
		Type: MessageTypeClear,
	})
}

func (self *MessageBus) SubscribeGlobal() *MessageSubscription {
	return self.subscribe(MessageScopeGlobal, "")
}

func (self *MessageBus) SubscribeLocal(key string) *MessageSubscription {
	return self.subscribe(MessageScopeLocal, key)
}

func (self *MessageBus) subscribe(scope MessageScope, key string) *MessageSubscription {
	subscription := &MessageSubscription{
		bus:              self,
		subscriptionId:   NewId(),
		scope:            scope,
		key:              key,
		messageCallbacks: NewCallbackList[MessageFunction](),
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.subscriptions[subscription.subscriptionId] = subscription
	if scope == MessageScopeLocal {
		self.localKeyCounts[key] += 1
	}
	return subscription
}

func (self *MessageBus) unsubscribe(subscription *MessageSubscription) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if _, ok := self.subscriptions[subscription.subscriptionId]; !ok {
		return
	}
	delete(self.subscriptions, subscription.subscriptionId)
	if subscription.scope == MessageScopeLocal {
		if count := self.localKeyCounts[subscription.key] - 1; 0 < count {
			self.localKeyCounts[subscription.key] = count
		} else {
			delete(self.localKeyCounts, subscription.key)
		}
	}
}

func (self *MessageBus) LocalSubscriberCount(key string) int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.localKeyCounts[key]
}

// MessageSubscription reduces the messages it receives to the latest
// success and the latest error. A success clears the error and vice versa.
type MessageSubscription struct {
	bus            *MessageBus
	subscriptionId Id
	scope          MessageScope
	key            string

	stateLock    sync.Mutex
	success      *Message
	errorMessage *Message

	messageCallbacks *CallbackList[MessageFunction]
}

func (self *MessageSubscription) Scope() MessageScope {
	return self.scope
}

func (self *MessageSubscription) Key() string {
	return self.key
}

func (self *MessageSubscription) receive(message *Message) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		switch message.Type {
		case MessageTypeSuccess:
			self.success = message
			self.errorMessage = nil
		case MessageTypeError:
			self.errorMessage = message
			self.success = nil
		case MessageTypeClear:
			self.success = nil
			self.errorMessage = nil
		}
	}()

	for _, messageCallback := range self.messageCallbacks.Get() {
		HandleError(func() {
			messageCallback(message)
		})
	}
}

// the latest success, or nil
func (self *MessageSubscription) Success() *Message {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.success
}

// the latest error, or nil
func (self *MessageSubscription) Error() *Message {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.errorMessage
}

func (self *MessageSubscription) AddMessageCallback(messageCallback MessageFunction) func() {
	callbackId := self.messageCallbacks.Add(messageCallback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *MessageSubscription) Close() {
	self.bus.unsubscribe(self)
	self.messageCallbacks.Clear()
}
