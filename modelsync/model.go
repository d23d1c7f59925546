package modelsync

import (
	"encoding/json"
	"slices"
	"time"
)

type ConceptValueType string

const (
	ConceptValueTypeNone          ConceptValueType = "none"
	ConceptValueTypeFromZeroToOne ConceptValueType = "from_zero_to_one"
)

type ConnectionValueType string

const (
	ConnectionValueTypeSymbolic          ConnectionValueType = "symbolic"
	ConnectionValueTypeFromMinusOneToOne ConnectionValueType = "from_minus_one_to_one"
)

type Project struct {
	Id          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	IsArchived  bool      `json:"isArchived"`
	CreatedAt   time.Time `json:"createdAt"`
	// logical clock of the project. Only ever advances locally.
	UpdatedAt           time.Time           `json:"updatedAt"`
	ConceptValueType    ConceptValueType    `json:"conceptValueType"`
	ConnectionValueType ConnectionValueType `json:"connectionValueType"`
	// installed plugin names. The sole feature flag mechanism.
	Plugins []string `json:"plugins"`
}

func (self *Project) HasPlugin(name string) bool {
	return slices.Contains(self.Plugins, name)
}

func (self *Project) Clone() *Project {
	project := *self
	project.Plugins = slices.Clone(self.Plugins)
	return &project
}

// plugin owned sub-records keyed by the plugin data key.
// Each plugin decodes only its own key.
type PluginsData map[string]json.RawMessage

func (self PluginsData) Clone() PluginsData {
	if self == nil {
		return nil
	}
	pluginsData := PluginsData{}
	for key, raw := range self {
		pluginsData[key] = slices.Clone(raw)
	}
	return pluginsData
}

func GetPluginData[T any](pluginsData PluginsData, key string) (*T, bool) {
	raw, ok := pluginsData[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return &value, true
}

func SetPluginData[T any](pluginsData *PluginsData, key string, value *T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if *pluginsData == nil {
		*pluginsData = PluginsData{}
	}
	(*pluginsData)[key] = raw
	return nil
}

type Concept struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// nil when the project concept value type is none
	Value       *float64    `json:"value"`
	ProjectId   int64       `json:"projectId"`
	XPosition   float64     `json:"xPosition"`
	YPosition   float64     `json:"yPosition"`
	PluginsData PluginsData `json:"pluginsData"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (self *Concept) Position() Position {
	return Position{
		X: self.XPosition,
		Y: self.YPosition,
	}
}

func (self *Concept) Clone() *Concept {
	concept := *self
	if self.Value != nil {
		value := *self.Value
		concept.Value = &value
	}
	concept.PluginsData = self.PluginsData.Clone()
	return &concept
}

type Connection struct {
	Id          int64       `json:"id"`
	Description string      `json:"description"`
	Value       float64     `json:"value"`
	SourceId    int64       `json:"sourceId"`
	TargetId    int64       `json:"targetId"`
	ProjectId   int64       `json:"projectId"`
	PluginsData PluginsData `json:"pluginsData"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (self *Connection) Clone() *Connection {
	connection := *self
	connection.PluginsData = self.PluginsData.Clone()
	return &connection
}

// one project with its unordered concepts and connections
type Model struct {
	Project     *Project      `json:"project"`
	Concepts    []*Concept    `json:"concepts"`
	Connections []*Connection `json:"connections"`
}

func (self *Model) FindConcept(conceptId int64) *Concept {
	for _, concept := range self.Concepts {
		if concept.Id == conceptId {
			return concept
		}
	}
	return nil
}

func (self *Model) FindConnection(connectionId int64) *Connection {
	for _, connection := range self.Connections {
		if connection.Id == connectionId {
			return connection
		}
	}
	return nil
}

func (self *Model) RemoveConcept(conceptId int64) bool {
	n := len(self.Concepts)
	self.Concepts = slices.DeleteFunc(self.Concepts, func(concept *Concept) bool {
		return concept.Id == conceptId
	})
	return len(self.Concepts) < n
}

func (self *Model) RemoveConnection(connectionId int64) bool {
	n := len(self.Connections)
	self.Connections = slices.DeleteFunc(self.Connections, func(connection *Connection) bool {
		return connection.Id == connectionId
	})
	return len(self.Connections) < n
}

func (self *Model) Clone() *Model {
	model := &Model{
		Concepts:    make([]*Concept, len(self.Concepts)),
		Connections: make([]*Connection, len(self.Connections)),
	}
	if self.Project != nil {
		model.Project = self.Project.Clone()
	}
	for i, concept := range self.Concepts {
		model.Concepts[i] = concept.Clone()
	}
	for i, connection := range self.Connections {
		model.Connections[i] = connection.Clone()
	}
	return model
}
