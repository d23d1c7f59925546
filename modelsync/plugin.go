package modelsync

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
)

const (
	ControlConceptsPluginName       = "Control Concepts"
	TargetConceptsPluginName        = "Target Concepts"
	ControlConnectionsPluginName    = "Control Connections"
	ConceptConstraintsPluginName    = "Concept Constraints"
	ConnectionConstraintsPluginName = "Connection Constraints"
	AdjustmentPluginName            = "Adjustment With Genetic Algorithms"
)

// style colors
const (
	AmberLighten1 = "#FFCA28"
	LimeLighten1  = "#D4E157"
)

type EntityKind string

const (
	EntityKindConcept    EntityKind = "concept"
	EntityKindConnection EntityKind = "connection"
)

func (self EntityKind) ElementId(id int64) string {
	switch self {
	case EntityKindConcept:
		return ConceptElementId(id)
	case EntityKindConnection:
		return ConnectionElementId(id)
	default:
		return fmt.Sprintf("%s%d", self, id)
	}
}

// a static visual rule keyed to a class selector
type StyleRule struct {
	Selector string
	Style    map[string]string
}

// the event targets an entity that is not in the local model
type AbsentEntityError struct {
	Kind EntityKind
	Id   int64
}

func (self *AbsentEntityError) Error() string {
	return fmt.Sprintf("%s %d is not in the model", self.Kind, self.Id)
}

// what an event handler may mutate
type UpdateTarget struct {
	Model *Model
	Graph Graph

	touched []ModelEvent
}

func (self *UpdateTarget) Touched(name string, kind EntityKind, id int64) {
	self.touched = append(self.touched, ModelEvent{
		Name:     name,
		Kind:     kind,
		EntityId: id,
	})
}

type EventHandler func(target *UpdateTarget, action *ActionResult) error

// commands whose success payload is an `ActionResult` to apply locally
type ActionCommand interface {
	Key() string
	OnSuccess(callback SuccessFunction[*ActionResult]) func()
	Close()
}

// A Plugin owns one record in `pluginsData`, the event kinds its commands
// produce, and the classes it derives from its record.
// Contributions are pure. Installation is decided by the project.
type Plugin interface {
	Name() string
	// "" when the plugin has no concept record
	ConceptDataKey() string
	// "" when the plugin has no connection record
	ConnectionDataKey() string
	ConceptClasses(concept *Concept) []string
	ConnectionClasses(connection *Connection) []string
	Styles() []*StyleRule
	EventHandlers() map[string]EventHandler
	Commands() []ActionCommand
	Close()
}

func IsInstalled(project *Project, plugin Plugin) bool {
	return project != nil && project.HasPlugin(plugin.Name())
}

// defaults for plugins that contribute nothing of a kind
type pluginBase struct {
	name string
}

func (self *pluginBase) Name() string {
	return self.name
}

func (self *pluginBase) ConceptDataKey() string {
	return ""
}

func (self *pluginBase) ConnectionDataKey() string {
	return ""
}

func (self *pluginBase) ConceptClasses(concept *Concept) []string {
	return []string{}
}

func (self *pluginBase) ConnectionClasses(connection *Connection) []string {
	return []string{}
}

func (self *pluginBase) Styles() []*StyleRule {
	return []*StyleRule{}
}

func (self *pluginBase) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{}
}

func (self *pluginBase) Commands() []ActionCommand {
	return []ActionCommand{}
}

func (self *pluginBase) Close() {
}

func toggleClass(graph Graph, elementId string, class string, on bool) {
	if on {
		graph.AddClass(elementId, class)
	} else {
		graph.RemoveClass(elementId, class)
	}
}

// an incoming update older than the entity is dropped
func staleUpdate(current time.Time, incoming time.Time) bool {
	return incoming.Before(current)
}

// applies `update` to the concept record at `key`, creating the record if missing.
// Returns nil concept when the update is stale.
func updateConceptRecord[T any](
	target *UpdateTarget,
	name string,
	conceptId int64,
	updatedAt time.Time,
	key string,
	update func(concept *Concept, record *T) error,
) (*Concept, error) {
	if err := requireId(EntityKindConcept, conceptId); err != nil {
		return nil, err
	}
	concept := target.Model.FindConcept(conceptId)
	if concept == nil {
		return nil, &AbsentEntityError{Kind: EntityKindConcept, Id: conceptId}
	}
	if staleUpdate(concept.UpdatedAt, updatedAt) {
		glog.V(1).Infof("[p]%s stale concept=%d\n", name, conceptId)
		return nil, nil
	}
	record, ok := GetPluginData[T](concept.PluginsData, key)
	if !ok {
		record = new(T)
	}
	if err := update(concept, record); err != nil {
		return nil, err
	}
	if err := SetPluginData(&concept.PluginsData, key, record); err != nil {
		return nil, err
	}
	concept.UpdatedAt = updatedAt
	target.Touched(name, EntityKindConcept, conceptId)
	return concept, nil
}

func updateConnectionRecord[T any](
	target *UpdateTarget,
	name string,
	connectionId int64,
	updatedAt time.Time,
	key string,
	update func(connection *Connection, record *T) error,
) (*Connection, error) {
	if err := requireId(EntityKindConnection, connectionId); err != nil {
		return nil, err
	}
	connection := target.Model.FindConnection(connectionId)
	if connection == nil {
		return nil, &AbsentEntityError{Kind: EntityKindConnection, Id: connectionId}
	}
	if staleUpdate(connection.UpdatedAt, updatedAt) {
		glog.V(1).Infof("[p]%s stale connection=%d\n", name, connectionId)
		return nil, nil
	}
	record, ok := GetPluginData[T](connection.PluginsData, key)
	if !ok {
		record = new(T)
	}
	if err := update(connection, record); err != nil {
		return nil, err
	}
	if err := SetPluginData(&connection.PluginsData, key, record); err != nil {
		return nil, err
	}
	connection.UpdatedAt = updatedAt
	target.Touched(name, EntityKindConnection, connectionId)
	return connection, nil
}

type registeredHandler struct {
	plugin  Plugin
	handler EventHandler
}

// PluginRegistry composes a fixed ordered list of plugins. The event name to
// handler table is built once here.
type PluginRegistry struct {
	plugins  []Plugin
	handlers map[string]*registeredHandler
}

func NewPluginRegistry(plugins ...Plugin) *PluginRegistry {
	handlers := map[string]*registeredHandler{}
	for _, plugin := range plugins {
		for name, handler := range plugin.EventHandlers() {
			if isCoreEvent(name) {
				glog.Infof("[p]%s cannot handle core event %s\n", plugin.Name(), name)
				continue
			}
			if existing, ok := handlers[name]; ok {
				glog.Infof("[p]%s event %s already handled by %s\n", plugin.Name(), name, existing.plugin.Name())
				continue
			}
			handlers[name] = &registeredHandler{
				plugin:  plugin,
				handler: handler,
			}
		}
	}
	return &PluginRegistry{
		plugins:  slices.Clone(plugins),
		handlers: handlers,
	}
}

func isCoreEvent(name string) bool {
	switch name {
	case CreateConceptKey, ChangeConceptKey, MoveConceptKey, DeleteConceptKey,
		CreateConnectionKey, ChangeConnectionKey, DeleteConnectionKey:
		return true
	default:
		return false
	}
}

func (self *PluginRegistry) Plugins() []Plugin {
	return slices.Clone(self.plugins)
}

func (self *PluginRegistry) Plugin(name string) Plugin {
	for _, plugin := range self.plugins {
		if plugin.Name() == name {
			return plugin
		}
	}
	return nil
}

func (self *PluginRegistry) ConceptClasses(project *Project, concept *Concept) []string {
	classes := []string{}
	for _, plugin := range self.plugins {
		if IsInstalled(project, plugin) {
			classes = append(classes, plugin.ConceptClasses(concept)...)
		}
	}
	return classes
}

func (self *PluginRegistry) ConnectionClasses(project *Project, connection *Connection) []string {
	classes := []string{}
	for _, plugin := range self.plugins {
		if IsInstalled(project, plugin) {
			classes = append(classes, plugin.ConnectionClasses(connection)...)
		}
	}
	return classes
}

func (self *PluginRegistry) Styles(project *Project) []*StyleRule {
	styles := []*StyleRule{}
	for _, plugin := range self.plugins {
		if IsInstalled(project, plugin) {
			styles = append(styles, plugin.Styles()...)
		}
	}
	return styles
}

// the owning plugin and handler for a plugin event name
func (self *PluginRegistry) Handler(name string) (Plugin, EventHandler, bool) {
	registered, ok := self.handlers[name]
	if !ok {
		return nil, nil, false
	}
	return registered.plugin, registered.handler, true
}

// sorted plugin event names
func (self *PluginRegistry) EventNames() []string {
	names := maps.Keys(self.handlers)
	slices.Sort(names)
	return names
}

// all commands of all plugins
func (self *PluginRegistry) Commands() []ActionCommand {
	commands := []ActionCommand{}
	for _, plugin := range self.plugins {
		commands = append(commands, plugin.Commands()...)
	}
	return commands
}

// drops records owned by plugins that are not installed on the project
func (self *PluginRegistry) SanitizeConcept(project *Project, concept *Concept) {
	for _, plugin := range self.plugins {
		key := plugin.ConceptDataKey()
		if key != "" && !IsInstalled(project, plugin) {
			delete(concept.PluginsData, key)
		}
	}
}

func (self *PluginRegistry) SanitizeConnection(project *Project, connection *Connection) {
	for _, plugin := range self.plugins {
		key := plugin.ConnectionDataKey()
		if key != "" && !IsInstalled(project, plugin) {
			delete(connection.PluginsData, key)
		}
	}
}

func (self *PluginRegistry) SanitizeModel(model *Model) {
	for _, concept := range model.Concepts {
		self.SanitizeConcept(model.Project, concept)
	}
	for _, connection := range model.Connections {
		self.SanitizeConnection(model.Project, connection)
	}
}

func (self *PluginRegistry) Close() {
	for _, plugin := range self.plugins {
		plugin.Close()
	}
}

func FindPlugin[P Plugin](registry *PluginRegistry) (P, bool) {
	for _, plugin := range registry.plugins {
		if p, ok := plugin.(P); ok {
			return p, true
		}
	}
	var empty P
	return empty, false
}

func IsAbsentEntityError(err error) (*AbsentEntityError, bool) {
	var absentErr *AbsentEntityError
	if errors.As(err, &absentErr) {
		return absentErr, true
	}
	return nil, false
}

// the plugin set in its fixed order
func DefaultPlugins(api *ModelApi, bus *MessageBus) []Plugin {
	return []Plugin{
		NewControlConceptsPlugin(api, bus),
		NewTargetConceptsPlugin(api, bus),
		NewControlConnectionsPlugin(api, bus),
		NewConceptConstraintsPlugin(api, bus),
		NewConnectionConstraintsPlugin(api, bus),
		NewAdjustmentPlugin(api, bus),
	}
}
