package modelsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

var ErrUnknownEntity = errors.New("unknown entity")

var ErrNotLoaded = errors.New("model not loaded")

type PluginNotInstalledError struct {
	Name string
}

func (self *PluginNotInstalledError) Error() string {
	return fmt.Sprintf("plugin %s is not installed", self.Name)
}

type SessionSettings struct {
	// trailing edge interval for move commands of one concept
	MoveDebounce time.Duration
	Api          *ApiSettings
	Channel      *ChannelSettings
	Dispatcher   *DispatcherSettings
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		MoveDebounce: 500 * time.Millisecond,
		Api:          DefaultApiSettings(),
		Channel:      DefaultChannelSettings(),
		Dispatcher:   DefaultDispatcherSettings(),
	}
}

// ModelSession is the editing view of one project. It owns the api, the
// project channel, the dispatcher and every command. Successful mutations
// are applied locally through the dispatcher, and the same change arriving
// on the channel is then a no-op.
type ModelSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	projectId     int64
	clientContext *ClientContext
	graph         Graph
	bus           *MessageBus
	settings      *SessionSettings

	api      *ModelApi
	channel  *LiveChannel
	registry *PluginRegistry

	getModel          *Command[int64, *Model]
	createConcept     *Command[*CreateConceptArgs, *ActionResult]
	changeConcept     *Command[*ChangeConceptArgs, *ActionResult]
	moveConcept       *Command[*MoveConceptArgs, *ActionResult]
	deleteConcept     *Command[int64, *ActionResult]
	createConnection  *Command[*CreateConnectionArgs, *ActionResult]
	changeConnection  *Command[*ChangeConnectionArgs, *ActionResult]
	deleteConnection  *Command[int64, *ActionResult]
	setProjectPlugins *Command[*SetProjectPluginsArgs, []string]

	moveDebouncer *Debouncer[int64, *ConceptMoveIn]

	stateLock  sync.Mutex
	dispatcher *Dispatcher
}

// `wsUrl` may be empty for a session without a live channel.
// The session has no model until `Load` or `SetModel`.
func NewModelSession(
	ctx context.Context,
	apiUrl string,
	wsUrl string,
	clientContext *ClientContext,
	projectId int64,
	graph Graph,
	bus *MessageBus,
	settings *SessionSettings,
) *ModelSession {
	cancelCtx, cancel := context.WithCancel(ctx)

	api := NewModelApi(cancelCtx, apiUrl, clientContext, settings.Api)
	session := &ModelSession{
		ctx:               cancelCtx,
		cancel:            cancel,
		projectId:         projectId,
		clientContext:     clientContext,
		graph:             graph,
		bus:               bus,
		settings:          settings,
		api:               api,
		registry:          NewPluginRegistry(DefaultPlugins(api, bus)...),
		getModel:          NewGetModelCommand(api, bus, CommandOptions{Key: GetModelKey}),
		createConcept:     NewCreateConceptCommand(api, bus, CommandOptions{Key: CreateConceptKey}),
		changeConcept:     NewChangeConceptCommand(api, bus, CommandOptions{Key: ChangeConceptKey}),
		moveConcept:       NewMoveConceptCommand(api, bus, CommandOptions{Key: MoveConceptKey}),
		deleteConcept:     NewDeleteConceptCommand(api, bus, CommandOptions{Key: DeleteConceptKey}),
		createConnection:  NewCreateConnectionCommand(api, bus, CommandOptions{Key: CreateConnectionKey}),
		changeConnection:  NewChangeConnectionCommand(api, bus, CommandOptions{Key: ChangeConnectionKey}),
		deleteConnection:  NewDeleteConnectionCommand(api, bus, CommandOptions{Key: DeleteConnectionKey}),
		setProjectPlugins: NewSetProjectPluginsCommand(api, bus, CommandOptions{Key: SetProjectPluginsKey}),
	}
	session.moveDebouncer = NewDebouncer[int64, *ConceptMoveIn](settings.MoveDebounce, session.sendMove)

	for _, command := range session.actionCommands() {
		command.OnSuccess(session.apply)
	}
	session.setProjectPlugins.OnSuccess(func(plugins []string) {
		if err := session.Load(session.ctx); err != nil {
			glog.Infof("[s]reload after plugins change error = %s\n", err)
		}
	})

	if wsUrl != "" {
		session.channel = NewLiveChannel(
			cancelCtx,
			ProjectChannelUrl(wsUrl, projectId),
			clientContext,
			settings.Channel,
		)
		session.channel.AddReceiveCallback(session.handleFrame)
	}
	return session
}

// loads the model, then opens the project channel
func OpenModelSession(
	ctx context.Context,
	apiUrl string,
	wsUrl string,
	clientContext *ClientContext,
	projectId int64,
	graph Graph,
	bus *MessageBus,
	settings *SessionSettings,
) (*ModelSession, error) {
	session := NewModelSession(ctx, apiUrl, wsUrl, clientContext, projectId, graph, bus, settings)
	if err := session.Load(ctx); err != nil {
		session.Close()
		return nil, err
	}
	session.Open()
	return session, nil
}

func (self *ModelSession) actionCommands() []ActionCommand {
	commands := []ActionCommand{
		self.createConcept,
		self.changeConcept,
		self.moveConcept,
		self.deleteConcept,
		self.createConnection,
		self.changeConnection,
		self.deleteConnection,
	}
	return append(commands, self.registry.Commands()...)
}

func (self *ModelSession) Open() {
	if self.channel != nil {
		self.channel.Open()
	}
}

// fetches the model and replaces the local one
func (self *ModelSession) Load(ctx context.Context) error {
	result, err := self.getModel.Execute(ctx, self.projectId)
	if err != nil {
		return err
	}
	if !result.Success {
		return &FetchFailedError{
			Key:       GetModelKey,
			ErrorData: result.ErrorData,
		}
	}
	self.SetModel(result.Data)
	return nil
}

func (self *ModelSession) SetModel(model *Model) {
	self.stateLock.Lock()
	dispatcher := self.dispatcher
	if dispatcher == nil {
		self.dispatcher = NewDispatcher(
			model,
			self.graph,
			self.registry,
			self.bus,
			self.clientContext.Locale,
			self.settings.Dispatcher,
		)
	}
	self.stateLock.Unlock()

	if dispatcher != nil {
		dispatcher.Reload(model)
	}
}

// nil before the model is loaded
func (self *ModelSession) Dispatcher() *Dispatcher {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.dispatcher
}

func (self *ModelSession) apply(action *ActionResult) {
	if dispatcher := self.Dispatcher(); dispatcher != nil {
		dispatcher.Apply(action)
	}
}

func (self *ModelSession) handleFrame(frame []byte) {
	if dispatcher := self.Dispatcher(); dispatcher != nil {
		dispatcher.HandleFrame(frame)
	} else {
		glog.V(1).Infof("[s]frame before load dropped %s\n", frameSummary(frame))
	}
}

func (self *ModelSession) ProjectId() int64 {
	return self.projectId
}

func (self *ModelSession) Bus() *MessageBus {
	return self.bus
}

func (self *ModelSession) Registry() *PluginRegistry {
	return self.registry
}

func (self *ModelSession) Api() *ModelApi {
	return self.api
}

// nil for a session without a live channel
func (self *ModelSession) Channel() *LiveChannel {
	return self.channel
}

func (self *ModelSession) Model() (*Model, error) {
	dispatcher := self.Dispatcher()
	if dispatcher == nil {
		return nil, ErrNotLoaded
	}
	return dispatcher.Snapshot(), nil
}

// an error if the plugin is not installed on the loaded project
func (self *ModelSession) RequirePlugin(name string) error {
	dispatcher := self.Dispatcher()
	if dispatcher == nil {
		return ErrNotLoaded
	}
	installed := false
	dispatcher.WithModel(func(model *Model) {
		installed = model.Project.HasPlugin(name)
	})
	if !installed {
		return &PluginNotInstalledError{Name: name}
	}
	return nil
}

func (self *ModelSession) CreateConcept(ctx context.Context, concept *ConceptIn) (*FetchResult[*ActionResult], error) {
	return self.createConcept.Execute(ctx, &CreateConceptArgs{
		ProjectId: self.projectId,
		Concept:   concept,
	})
}

func (self *ModelSession) ChangeConcept(ctx context.Context, conceptId int64, concept *ConceptIn) (*FetchResult[*ActionResult], error) {
	return self.changeConcept.Execute(ctx, &ChangeConceptArgs{
		ConceptId: conceptId,
		Concept:   concept,
	})
}

// Queues a move of the concept. Moves of one concept are coalesced and only the
// final position is sent once no move arrives for the debounce interval.
func (self *ModelSession) MoveConcept(conceptId int64, x float64, y float64) error {
	dispatcher := self.Dispatcher()
	if dispatcher == nil {
		return ErrNotLoaded
	}
	found := false
	dispatcher.WithModel(func(model *Model) {
		found = model.FindConcept(conceptId) != nil
	})
	if !found {
		return fmt.Errorf("%w: concept %d", ErrUnknownEntity, conceptId)
	}
	self.moveDebouncer.Call(conceptId, &ConceptMoveIn{
		XPosition: x,
		YPosition: y,
	})
	return nil
}

// sends queued moves now
func (self *ModelSession) FlushMoves() {
	self.moveDebouncer.Flush()
}

func (self *ModelSession) PendingMoves() int {
	return self.moveDebouncer.Pending()
}

func (self *ModelSession) sendMove(conceptId int64, move *ConceptMoveIn) {
	_, err := self.moveConcept.Execute(self.ctx, &MoveConceptArgs{
		ConceptId: conceptId,
		Move:      move,
	})
	if err != nil {
		glog.Infof("[s]move concept=%d error = %s\n", conceptId, err)
	}
}

func (self *ModelSession) DeleteConcept(ctx context.Context, conceptId int64) (*FetchResult[*ActionResult], error) {
	return self.deleteConcept.Execute(ctx, conceptId)
}

func (self *ModelSession) CreateConnection(ctx context.Context, connection *ConnectionIn) (*FetchResult[*ActionResult], error) {
	return self.createConnection.Execute(ctx, &CreateConnectionArgs{
		ProjectId:  self.projectId,
		Connection: connection,
	})
}

func (self *ModelSession) ChangeConnection(ctx context.Context, connectionId int64, connection *ConnectionChangeIn) (*FetchResult[*ActionResult], error) {
	return self.changeConnection.Execute(ctx, &ChangeConnectionArgs{
		ConnectionId: connectionId,
		Connection:   connection,
	})
}

func (self *ModelSession) DeleteConnection(ctx context.Context, connectionId int64) (*FetchResult[*ActionResult], error) {
	return self.deleteConnection.Execute(ctx, connectionId)
}

// sets the installed plugins. On success the model is loaded again.
func (self *ModelSession) SetPlugins(ctx context.Context, plugins []string) (*FetchResult[[]string], error) {
	return self.setProjectPlugins.Execute(ctx, &SetProjectPluginsArgs{
		ProjectId: self.projectId,
		Plugins:   plugins,
	})
}

func (self *ModelSession) ControlConcepts() *ControlConceptsPlugin {
	plugin, _ := FindPlugin[*ControlConceptsPlugin](self.registry)
	return plugin
}

func (self *ModelSession) TargetConcepts() *TargetConceptsPlugin {
	plugin, _ := FindPlugin[*TargetConceptsPlugin](self.registry)
	return plugin
}

func (self *ModelSession) ControlConnections() *ControlConnectionsPlugin {
	plugin, _ := FindPlugin[*ControlConnectionsPlugin](self.registry)
	return plugin
}

func (self *ModelSession) ConceptConstraints() *ConceptConstraintsPlugin {
	plugin, _ := FindPlugin[*ConceptConstraintsPlugin](self.registry)
	return plugin
}

func (self *ModelSession) ConnectionConstraints() *ConnectionConstraintsPlugin {
	plugin, _ := FindPlugin[*ConnectionConstraintsPlugin](self.registry)
	return plugin
}

func (self *ModelSession) Adjustment() *AdjustmentPlugin {
	plugin, _ := FindPlugin[*AdjustmentPlugin](self.registry)
	return plugin
}

func (self *ModelSession) Done() <-chan struct{} {
	return self.ctx.Done()
}

// Tears the view down. Queued moves are dropped, the channel is closed and
// callbacks are released. In flight requests still resolve but post nothing.
func (self *ModelSession) Close() {
	self.cancel()
	self.moveDebouncer.Close()
	if self.channel != nil {
		self.channel.Close()
	}
	self.getModel.Close()
	for _, command := range self.actionCommands() {
		command.Close()
	}
	self.setProjectPlugins.Close()
	self.registry.Close()
	self.api.Close()
}
