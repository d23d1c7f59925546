package modelsync

import (
	"flag"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func testTime(seconds int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, seconds, 0, time.UTC)
}

func testFloat(value float64) *float64 {
	return &value
}

func testModel(plugins ...string) *Model {
	return &Model{
		Project: &Project{
			Id:                  1,
			Name:                "test",
			UpdatedAt:           testTime(0),
			ConceptValueType:    ConceptValueTypeFromZeroToOne,
			ConnectionValueType: ConnectionValueTypeFromMinusOneToOne,
			Plugins:             plugins,
		},
		Concepts:    []*Concept{},
		Connections: []*Connection{},
	}
}

func testConcept(conceptId int64, updatedAt time.Time) *Concept {
	return &Concept{
		Id:          conceptId,
		Name:        "c",
		Description: "d",
		Value:       testFloat(0.5),
		ProjectId:   1,
		XPosition:   1,
		YPosition:   2,
		PluginsData: PluginsData{},
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
}

func testConnection(connectionId int64, sourceId int64, targetId int64, updatedAt time.Time) *Connection {
	return &Connection{
		Id:          connectionId,
		Description: "e",
		Value:       0.25,
		SourceId:    sourceId,
		TargetId:    targetId,
		ProjectId:   1,
		PluginsData: PluginsData{},
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	}
}

func testAction(t *testing.T, name string, projectUpdatedAt time.Time, data any) *ActionResult {
	action, err := NewActionResult(name, 1, projectUpdatedAt, data)
	assert.Equal(t, err, nil)
	return action
}

func testDispatcher(model *Model) (*Dispatcher, *MemoryGraph, *MessageBus) {
	graph := NewMemoryGraph()
	bus := NewMessageBus()
	registry := NewPluginRegistry(DefaultPlugins(nil, bus)...)
	dispatcher := NewDispatcherWithDefaults(model, graph, registry, bus, "en")
	return dispatcher, graph, bus
}

func withPluginData[T any](t *testing.T, pluginsData PluginsData, key string, value *T) PluginsData {
	err := SetPluginData(&pluginsData, key, value)
	assert.Equal(t, err, nil)
	return pluginsData
}
