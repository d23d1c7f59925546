package modelsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFormatValue(t *testing.T) {
	assert.Equal(t, FormatValue("en", 0.5), "0.5")
	assert.Equal(t, FormatValue("en", 1.0/3.0), "0.333")
	assert.Equal(t, FormatValue("en", -1), "-1")
	assert.Equal(t, FormatValue("de", 0.25), "0,25")
	// unparseable locales format as english
	assert.Equal(t, FormatValue("?", 0.5), "0.5")
}

func TestConnectionEdgeData(t *testing.T) {
	project := testModel().Project
	connection := testConnection(3, 1, 2, testTime(1))

	data := ConnectionEdgeData(project, connection, "en")
	assert.Equal(t, data.ConnectionId, int64(3))
	assert.Equal(t, data.Source, "concept1")
	assert.Equal(t, data.Target, "concept2")
	assert.Equal(t, data.Label, "0.25")

	project.ConnectionValueType = ConnectionValueTypeSymbolic
	connection.Value = -1
	assert.Equal(t, ConnectionEdgeData(project, connection, "en").Label, "-")
	connection.Value = 1
	assert.Equal(t, ConnectionEdgeData(project, connection, "en").Label, "+")
}

func TestMemoryGraphClasses(t *testing.T) {
	graph := NewMemoryGraph()
	graph.AddNode("concept1", NodeData{ConceptId: 1, Label: "a"}, Position{X: 1, Y: 2}, []string{"x"})

	graph.AddClass("concept1", "y")
	graph.AddClass("concept1", "y")
	assert.Equal(t, graph.Element("concept1").Classes, []string{"x", "y"})

	graph.RemoveClass("concept1", "x")
	assert.Equal(t, graph.HasClass("concept1", "x"), false)
	assert.Equal(t, graph.HasClass("concept1", "y"), true)

	// returned elements are copies
	element := graph.Element("concept1")
	element.Classes[0] = "z"
	assert.Equal(t, graph.HasClass("concept1", "y"), true)

	graph.SetNodePosition("concept1", Position{X: 5, Y: 6})
	assert.Equal(t, graph.Element("concept1").Position, Position{X: 5, Y: 6})

	graph.AddClass("missing", "y")
	assert.Equal(t, graph.Element("missing"), nil)

	graph.Clear()
	assert.Equal(t, graph.Len(), 0)
}
