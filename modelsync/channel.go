package modelsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type ChannelSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	// a ping is written after this much idle time
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	// any frame or pong resets the read deadline
	ReadTimeout time.Duration
}

func DefaultChannelSettings() *ChannelSettings {
	return &ChannelSettings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		PingTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
	}
}

func ProjectChannelUrl(wsUrl string, projectId int64) string {
	return fmt.Sprintf("%s/project/%d", strings.TrimRight(wsUrl, "/"), projectId)
}

func AdjustmentRunsChannelUrl(wsUrl string, projectId int64) string {
	return fmt.Sprintf("%s/adjustment_runs/%d", strings.TrimRight(wsUrl, "/"), projectId)
}

// frames are delivered in receive order on the channel reader
type ReceiveFunction = func(frame []byte)

type ConnectFunction = func(connected bool)

// LiveChannel is one persistent connection that reconnects on drop and
// delivers every text frame to the receive callbacks.
type LiveChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	channelUrl    string
	clientContext *ClientContext
	settings      *ChannelSettings

	receiveCallbacks *CallbackList[ReceiveFunction]
	connectCallbacks *CallbackList[ConnectFunction]

	openOnce sync.Once

	stateLock    sync.Mutex
	connected    bool
	connectCount int
}

func NewLiveChannelWithDefaults(ctx context.Context, channelUrl string, clientContext *ClientContext) *LiveChannel {
	return NewLiveChannel(ctx, channelUrl, clientContext, DefaultChannelSettings())
}

func NewLiveChannel(
	ctx context.Context,
	channelUrl string,
	clientContext *ClientContext,
	settings *ChannelSettings,
) *LiveChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &LiveChannel{
		ctx:              cancelCtx,
		cancel:           cancel,
		channelUrl:       channelUrl,
		clientContext:    clientContext,
		settings:         settings,
		receiveCallbacks: NewCallbackList[ReceiveFunction](),
		connectCallbacks: NewCallbackList[ConnectFunction](),
	}
}

func (self *LiveChannel) Url() string {
	return self.channelUrl
}

func (self *LiveChannel) AddReceiveCallback(receiveCallback ReceiveFunction) func() {
	callbackId := self.receiveCallbacks.Add(receiveCallback)
	return func() {
		self.receiveCallbacks.Remove(callbackId)
	}
}

func (self *LiveChannel) AddConnectCallback(connectCallback ConnectFunction) func() {
	callbackId := self.connectCallbacks.Add(connectCallback)
	return func() {
		self.connectCallbacks.Remove(callbackId)
	}
}

// starts the connect loop. Safe to call more than once.
func (self *LiveChannel) Open() {
	self.openOnce.Do(func() {
		go self.run()
	})
}

func (self *LiveChannel) IsConnected() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.connected
}

// number of successful connects, including reconnects
func (self *LiveChannel) ConnectCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.connectCount
}

func (self *LiveChannel) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *LiveChannel) setConnected(connected bool) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.connected = connected
		if connected {
			self.connectCount += 1
		}
	}()
	for _, connectCallback := range self.connectCallbacks.Get() {
		HandleError(func() {
			connectCallback(connected)
		})
	}
}

func (self *LiveChannel) run() {
	defer self.cancel()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = TraceWithReturnError(fmt.Sprintf("[c]connect %s", self.channelUrl), self.connect)
		} else {
			ws, err = self.connect()
		}
		if err != nil {
			glog.Infof("[c]connect error %s = %s\n", self.channelUrl, err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		self.handle(ws)

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *LiveChannel) connect() (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: self.settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(self.ctx, self.channelUrl, self.clientContext.Header())
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (self *LiveChannel) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	self.setConnected(true)
	defer self.setConnected(false)

	ws.SetPongHandler(func(string) error {
		glog.V(2).Infof("[c]pong %s<-\n", self.channelUrl)
		return ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
	})

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(self.settings.WriteTimeout))
				if err != nil {
					// note that for websocket a dealine timeout cannot be recovered
					glog.Infof("[c]ping %s-> error = %s\n", self.channelUrl, err)
					return
				}
				glog.V(2).Infof("[c]ping %s->\n", self.channelUrl)
			}
		}
	}()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			default:
			}

			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				if self.ctx.Err() == nil {
					glog.Infof("[c]%s<- error = %s\n", self.channelUrl, err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage, websocket.BinaryMessage:
				if len(message) == 0 {
					// heartbeat
					continue
				}
				glog.V(2).Infof("[c]%s<- %s\n", self.channelUrl, frameSummary(message))
				for _, receiveCallback := range self.receiveCallbacks.Get() {
					HandleError(func() {
						receiveCallback(message)
					})
				}
			default:
				glog.V(2).Infof("[c]other=%d %s<-\n", messageType, self.channelUrl)
			}
		}
	}()

	<-handleCtx.Done()

	if self.ctx.Err() != nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(self.settings.WriteTimeout),
		)
	}
}

func (self *LiveChannel) Close() {
	self.cancel()
}
