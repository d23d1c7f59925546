package modelsync

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
)

// model event name for a full model replace
const ReloadEventName = "reload"

type DispatcherSettings struct {
	// events for absent entities held until the entity is created.
	// The oldest parked event is dropped past the limit.
	ParkedEventLimit int
	// deleted entities remembered so that a late create does not resurrect them
	TombstoneLimit int
}

func DefaultDispatcherSettings() *DispatcherSettings {
	return &DispatcherSettings{
		ParkedEventLimit: 256,
		TombstoneLimit:   1024,
	}
}

// a touched entity. `Kind` is empty for `ReloadEventName`.
type ModelEvent struct {
	Name     string
	Kind     EntityKind
	EntityId int64
}

type ModelEventFunction = func(event ModelEvent)

type entityKey struct {
	kind EntityKind
	id   int64
}

type parkedEvent struct {
	key       entityKey
	action    *ActionResult
	updatedAt time.Time
}

// Dispatcher applies inbound actions to the model and the graph.
// Each action is applied independently. A failed action is dropped and the
// next one proceeds. Core event kinds are handled here, every other kind is
// routed through the plugin registry.
type Dispatcher struct {
	registry *PluginRegistry
	graph    Graph
	bus      *MessageBus
	settings *DispatcherSettings

	modelEventCallbacks *CallbackList[ModelEventFunction]

	stateLock      sync.Mutex
	model          *Model
	locale         string
	parked         []*parkedEvent
	tombstones     map[entityKey]time.Time
	tombstoneOrder []entityKey
}

func NewDispatcherWithDefaults(model *Model, graph Graph, registry *PluginRegistry, bus *MessageBus, locale string) *Dispatcher {
	return NewDispatcher(model, graph, registry, bus, locale, DefaultDispatcherSettings())
}

func NewDispatcher(
	model *Model,
	graph Graph,
	registry *PluginRegistry,
	bus *MessageBus,
	locale string,
	settings *DispatcherSettings,
) *Dispatcher {
	dispatcher := &Dispatcher{
		registry:            registry,
		graph:               graph,
		bus:                 bus,
		settings:            settings,
		modelEventCallbacks: NewCallbackList[ModelEventFunction](),
		model:               model,
		locale:              locale,
		tombstones:          map[entityKey]time.Time{},
	}
	registry.SanitizeModel(model)
	dispatcher.render()
	return dispatcher
}

func (self *Dispatcher) AddModelEventCallback(modelEventCallback ModelEventFunction) func() {
	callbackId := self.modelEventCallbacks.Add(modelEventCallback)
	return func() {
		self.modelEventCallbacks.Remove(callbackId)
	}
}

func (self *Dispatcher) Registry() *PluginRegistry {
	return self.registry
}

func (self *Dispatcher) Graph() Graph {
	return self.graph
}

// parses one channel frame. Malformed frames are dropped.
// A rejection frame goes to the message bus and never touches the model.
func (self *Dispatcher) HandleFrame(frame []byte) {
	action, actionErr, err := ParseActionFrame(frame)
	if err != nil {
		glog.Infof("[d]drop frame %s = %s\n", frameSummary(frame), err)
		return
	}
	if actionErr != nil {
		glog.V(1).Infof("[d]%s rejected = %s\n", actionErr.Name, actionErr.Message)
		self.bus.EmitError(actionErr.Name, actionErr.Message)
		return
	}
	self.Apply(action)
}

// Applies one action. Returns true if any entity changed.
// Applying the same action again is a no-op.
func (self *Dispatcher) Apply(action *ActionResult) bool {
	var events []ModelEvent
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		project := self.model.Project
		if action.ProjectId != 0 && action.ProjectId != project.Id {
			glog.V(1).Infof("[d]%s for project %d ignored in project %d\n", action.Name, action.ProjectId, project.Id)
			return
		}
		if project.UpdatedAt.Before(action.ProjectUpdatedAt) {
			project.UpdatedAt = action.ProjectUpdatedAt
		}

		target := &UpdateTarget{
			Model: self.model,
			Graph: self.graph,
		}
		HandleError(func() {
			self.dispatch(target, action)
		}, func(err error) {
			glog.Infof("[d]%s dropped = %s\n", action.Name, err)
		})
		events = target.touched
	}()

	self.emit(events...)
	return 0 < len(events)
}

func (self *Dispatcher) emit(events ...ModelEvent) {
	for _, event := range events {
		glog.V(1).Infof("[d]%s %s=%d\n", event.Name, event.Kind, event.EntityId)
		for _, modelEventCallback := range self.modelEventCallbacks.Get() {
			HandleError(func() {
				modelEventCallback(event)
			})
		}
	}
}

func (self *Dispatcher) dispatch(target *UpdateTarget, action *ActionResult) {
	var err error
	switch action.Name {
	case CreateConceptKey:
		err = self.createConcept(target, action)
	case ChangeConceptKey:
		err = self.changeConcept(target, action)
	case MoveConceptKey:
		err = self.moveConcept(target, action)
	case DeleteConceptKey:
		err = self.deleteEntity(target, action, EntityKindConcept)
	case CreateConnectionKey:
		err = self.createConnection(target, action)
	case ChangeConnectionKey:
		err = self.changeConnection(target, action)
	case DeleteConnectionKey:
		err = self.deleteEntity(target, action, EntityKindConnection)
	default:
		plugin, handler, ok := self.registry.Handler(action.Name)
		if !ok {
			glog.V(1).Infof("[d]%s unknown\n", action.Name)
			return
		}
		if !IsInstalled(self.model.Project, plugin) {
			glog.V(1).Infof("[d]%s plugin %s not installed\n", action.Name, plugin.Name())
			return
		}
		err = handler(target, action)
	}

	if err == nil {
		return
	}
	if absentErr, ok := IsAbsentEntityError(err); ok {
		self.park(entityKey{kind: absentErr.Kind, id: absentErr.Id}, action)
		return
	}
	glog.Infof("[d]%s error = %s\n", action.Name, err)
}

func (self *Dispatcher) createConcept(target *UpdateTarget, action *ActionResult) error {
	concept, err := DecodeActionData[Concept](action)
	if err != nil {
		return err
	}
	if err := requireId(EntityKindConcept, concept.Id); err != nil {
		return err
	}
	key := entityKey{kind: EntityKindConcept, id: concept.Id}
	if !self.admitCreate(key, concept.UpdatedAt) {
		return nil
	}
	if target.Model.FindConcept(concept.Id) != nil {
		return nil
	}

	project := target.Model.Project
	self.registry.SanitizeConcept(project, concept)
	target.Model.Concepts = append(target.Model.Concepts, concept)
	self.graph.AddNode(
		ConceptElementId(concept.Id),
		ConceptNodeData(project, concept, self.locale),
		concept.Position(),
		self.registry.ConceptClasses(project, concept),
	)
	target.Touched(action.Name, EntityKindConcept, concept.Id)

	self.replay(target, key, concept.UpdatedAt)
	return nil
}

func (self *Dispatcher) changeConcept(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ConceptChange](action)
	if err != nil {
		return err
	}
	if err := requireId(EntityKindConcept, change.Id); err != nil {
		return err
	}
	concept := target.Model.FindConcept(change.Id)
	if concept == nil {
		return &AbsentEntityError{Kind: EntityKindConcept, Id: change.Id}
	}
	if staleUpdate(concept.UpdatedAt, change.UpdatedAt) {
		glog.V(1).Infof("[d]%s stale concept=%d\n", action.Name, change.Id)
		return nil
	}

	concept.Name = change.Name
	concept.Description = change.Description
	concept.Value = change.Value
	concept.XPosition = change.XPosition
	concept.YPosition = change.YPosition
	concept.UpdatedAt = change.UpdatedAt
	self.graph.UpdateNode(
		ConceptElementId(concept.Id),
		ConceptNodeData(target.Model.Project, concept, self.locale),
		concept.Position(),
	)
	target.Touched(action.Name, EntityKindConcept, concept.Id)
	return nil
}

func (self *Dispatcher) moveConcept(target *UpdateTarget, action *ActionResult) error {
	move, err := DecodeActionData[ConceptMove](action)
	if err != nil {
		return err
	}
	if err := requireId(EntityKindConcept, move.Id); err != nil {
		return err
	}
	concept := target.Model.FindConcept(move.Id)
	if concept == nil {
		return &AbsentEntityError{Kind: EntityKindConcept, Id: move.Id}
	}
	if staleUpdate(concept.UpdatedAt, move.UpdatedAt) {
		glog.V(1).Infof("[d]%s stale concept=%d\n", action.Name, move.Id)
		return nil
	}

	concept.XPosition = move.XPosition
	concept.YPosition = move.YPosition
	concept.UpdatedAt = move.UpdatedAt
	self.graph.SetNodePosition(ConceptElementId(concept.Id), concept.Position())
	target.Touched(action.Name, EntityKindConcept, concept.Id)
	return nil
}

func (self *Dispatcher) createConnection(target *UpdateTarget, action *ActionResult) error {
	connection, err := DecodeActionData[Connection](action)
	if err != nil {
		return err
	}
	if err := requireId(EntityKindConnection, connection.Id); err != nil {
		return err
	}
	if connection.SourceId == 0 || connection.TargetId == 0 {
		return fmt.Errorf("%w: connection=%d without endpoints", ErrInvalidPayload, connection.Id)
	}
	key := entityKey{kind: EntityKindConnection, id: connection.Id}
	if !self.admitCreate(key, connection.UpdatedAt) {
		return nil
	}
	if target.Model.FindConnection(connection.Id) != nil {
		return nil
	}

	project := target.Model.Project
	self.registry.SanitizeConnection(project, connection)
	target.Model.Connections = append(target.Model.Connections, connection)
	self.graph.AddEdge(
		ConnectionElementId(connection.Id),
		ConnectionEdgeData(project, connection, self.locale),
		self.registry.ConnectionClasses(project, connection),
	)
	target.Touched(action.Name, EntityKindConnection, connection.Id)

	self.replay(target, key, connection.UpdatedAt)
	return nil
}

func (self *Dispatcher) changeConnection(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ConnectionChange](action)
	if err != nil {
		return err
	}
	if err := requireId(EntityKindConnection, change.Id); err != nil {
		return err
	}
	connection := target.Model.FindConnection(change.Id)
	if connection == nil {
		return &AbsentEntityError{Kind: EntityKindConnection, Id: change.Id}
	}
	if staleUpdate(connection.UpdatedAt, change.UpdatedAt) {
		glog.V(1).Infof("[d]%s stale connection=%d\n", action.Name, change.Id)
		return nil
	}

	connection.Description = change.Description
	connection.Value = change.Value
	connection.UpdatedAt = change.UpdatedAt
	self.graph.UpdateEdge(
		ConnectionElementId(connection.Id),
		ConnectionEdgeData(target.Model.Project, connection, self.locale),
	)
	target.Touched(action.Name, EntityKindConnection, connection.Id)
	return nil
}

// incident connections are not removed with a concept. They arrive as their own deletes.
func (self *Dispatcher) deleteEntity(target *UpdateTarget, action *ActionResult, kind EntityKind) error {
	deleted, err := DecodeActionData[EntityDelete](action)
	if err != nil {
		return err
	}
	if err := requireId(kind, deleted.Id); err != nil {
		return err
	}
	deletedAt := deleted.UpdatedAt
	if deletedAt.IsZero() {
		deletedAt = action.ProjectUpdatedAt
	}
	key := entityKey{kind: kind, id: deleted.Id}
	self.tombstone(key, deletedAt)
	self.dropParked(key)

	var removed bool
	switch kind {
	case EntityKindConcept:
		removed = target.Model.RemoveConcept(deleted.Id)
	case EntityKindConnection:
		removed = target.Model.RemoveConnection(deleted.Id)
	}
	if removed {
		self.graph.Remove(kind.ElementId(deleted.Id))
		target.Touched(action.Name, kind, deleted.Id)
	}
	return nil
}

// false if the entity was deleted at or after `updatedAt`
func (self *Dispatcher) admitCreate(key entityKey, updatedAt time.Time) bool {
	deletedAt, ok := self.tombstones[key]
	if !ok {
		return true
	}
	if !deletedAt.Before(updatedAt) {
		glog.V(1).Infof("[d]create %s=%d after delete ignored\n", key.kind, key.id)
		return false
	}
	delete(self.tombstones, key)
	return true
}

func (self *Dispatcher) tombstone(key entityKey, deletedAt time.Time) {
	if _, ok := self.tombstones[key]; !ok {
		self.tombstoneOrder = append(self.tombstoneOrder, key)
	}
	self.tombstones[key] = deletedAt
	for self.settings.TombstoneLimit < len(self.tombstoneOrder) {
		delete(self.tombstones, self.tombstoneOrder[0])
		self.tombstoneOrder = self.tombstoneOrder[1:]
	}
}

func (self *Dispatcher) park(key entityKey, action *ActionResult) {
	if _, ok := self.tombstones[key]; ok {
		glog.V(1).Infof("[d]%s for deleted %s=%d ignored\n", action.Name, key.kind, key.id)
		return
	}
	updatedAt, err := actionUpdatedAt(action)
	if err != nil {
		glog.Infof("[d]%s park %s=%d error = %s\n", action.Name, key.kind, key.id, err)
		return
	}
	glog.V(1).Infof("[d]%s park %s=%d\n", action.Name, key.kind, key.id)
	self.parked = append(self.parked, &parkedEvent{
		key:       key,
		action:    action,
		updatedAt: updatedAt,
	})
	if self.settings.ParkedEventLimit < len(self.parked) {
		dropped := self.parked[0]
		glog.Infof("[d]%s parked for %s=%d dropped\n", dropped.action.Name, dropped.key.kind, dropped.key.id)
		self.parked = self.parked[1:]
	}
}

func (self *Dispatcher) takeParked(key entityKey) []*parkedEvent {
	var taken []*parkedEvent
	remaining := make([]*parkedEvent, 0, len(self.parked))
	for _, parked := range self.parked {
		if parked.key == key {
			taken = append(taken, parked)
		} else {
			remaining = append(remaining, parked)
		}
	}
	self.parked = remaining
	return taken
}

func (self *Dispatcher) dropParked(key entityKey) {
	self.takeParked(key)
}

// applies events parked for a newly created entity in `updatedAt` order.
// Events older than the created entity are dropped.
func (self *Dispatcher) replay(target *UpdateTarget, key entityKey, createdAt time.Time) {
	parked := self.takeParked(key)
	slices.SortStableFunc(parked, func(a *parkedEvent, b *parkedEvent) int {
		return a.updatedAt.Compare(b.updatedAt)
	})
	for _, p := range parked {
		if p.updatedAt.Before(createdAt) {
			glog.V(1).Infof("[d]%s parked for %s=%d older than create\n", p.action.Name, key.kind, key.id)
			continue
		}
		self.dispatch(target, p.action)
	}
}

func (self *Dispatcher) render() {
	self.graph.Clear()
	project := self.model.Project
	for _, concept := range self.model.Concepts {
		self.graph.AddNode(
			ConceptElementId(concept.Id),
			ConceptNodeData(project, concept, self.locale),
			concept.Position(),
			self.registry.ConceptClasses(project, concept),
		)
	}
	for _, connection := range self.model.Connections {
		self.graph.AddEdge(
			ConnectionElementId(connection.Id),
			ConnectionEdgeData(project, connection, self.locale),
			self.registry.ConnectionClasses(project, connection),
		)
	}
}

// replaces the whole model, e.g. after the installed plugins change
func (self *Dispatcher) Reload(model *Model) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.registry.SanitizeModel(model)
		self.model = model
		self.parked = nil
		self.tombstones = map[entityKey]time.Time{}
		self.tombstoneOrder = nil
		if glog.V(2) {
			Trace(fmt.Sprintf("[d]render project=%d", model.Project.Id), self.render)
		} else {
			self.render()
		}
	}()
	self.emit(ModelEvent{Name: ReloadEventName})
}

// relabels every element for the locale
func (self *Dispatcher) SetLocale(locale string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.locale = locale
	project := self.model.Project
	for _, concept := range self.model.Concepts {
		self.graph.UpdateNode(
			ConceptElementId(concept.Id),
			ConceptNodeData(project, concept, locale),
			concept.Position(),
		)
	}
	for _, connection := range self.model.Connections {
		self.graph.UpdateEdge(
			ConnectionElementId(connection.Id),
			ConnectionEdgeData(project, connection, locale),
		)
	}
}

func (self *Dispatcher) Locale() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.locale
}

// runs `callback` with the live model. The model must not be retained.
func (self *Dispatcher) WithModel(callback func(model *Model)) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	callback(self.model)
}

func (self *Dispatcher) Snapshot() *Model {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.model.Clone()
}

func (self *Dispatcher) Styles() []*StyleRule {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.registry.Styles(self.model.Project)
}

func (self *Dispatcher) ParkedCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.parked)
}
