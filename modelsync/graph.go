package modelsync

import (
	"fmt"
	"slices"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

type Position struct {
	X float64
	Y float64
}

type NodeData struct {
	ConceptId int64
	Label     string
}

type EdgeData struct {
	ConnectionId int64
	Source       string
	Target       string
	Label        string
}

// Graph is the derived visual representation the dispatcher keeps in step
// with the model. Element ids are `ConceptElementId` and `ConnectionElementId`.
// Implementations must tolerate operations on ids they do not hold.
type Graph interface {
	AddNode(id string, data NodeData, position Position, classes []string)
	UpdateNode(id string, data NodeData, position Position)
	SetNodePosition(id string, position Position)
	AddEdge(id string, data EdgeData, classes []string)
	UpdateEdge(id string, data EdgeData)
	Remove(id string)
	AddClass(id string, class string)
	RemoveClass(id string, class string)
	Clear()
}

func ConceptElementId(conceptId int64) string {
	return fmt.Sprintf("concept%d", conceptId)
}

func ConnectionElementId(connectionId int64) string {
	return fmt.Sprintf("connection%d", connectionId)
}

func ConceptNodeData(project *Project, concept *Concept, locale string) NodeData {
	var value string
	if project.ConceptValueType == ConceptValueTypeNone || concept.Value == nil {
		value = "\n"
	} else {
		value = FormatValue(locale, *concept.Value)
	}
	return NodeData{
		ConceptId: concept.Id,
		Label:     fmt.Sprintf("%s\n\n%s\n\n%s", concept.Name, value, concept.Description),
	}
}

func ConnectionEdgeData(project *Project, connection *Connection, locale string) EdgeData {
	var label string
	if project.ConnectionValueType == ConnectionValueTypeSymbolic {
		if 0 < connection.Value {
			label = "+"
		} else {
			label = "-"
		}
	} else {
		label = FormatValue(locale, connection.Value)
	}
	return EdgeData{
		ConnectionId: connection.Id,
		Source:       ConceptElementId(connection.SourceId),
		Target:       ConceptElementId(connection.TargetId),
		Label:        label,
	}
}

// locale aware decimal with at most 3 fraction digits
func FormatValue(locale string, value float64) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	return printer.Sprint(number.Decimal(value, number.MaxFractionDigits(3)))
}

type MemoryElement struct {
	Id       string
	IsNode   bool
	Node     NodeData
	Edge     EdgeData
	Position Position
	Classes  []string
}

func (self *MemoryElement) HasClass(class string) bool {
	return slices.Contains(self.Classes, class)
}

func (self *MemoryElement) Label() string {
	if self.IsNode {
		return self.Node.Label
	}
	return self.Edge.Label
}

// MemoryGraph is a `Graph` held in memory, used by the cli and tests.
type MemoryGraph struct {
	stateLock sync.Mutex
	elements  map[string]*MemoryElement
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		elements: map[string]*MemoryElement{},
	}
}

func (self *MemoryGraph) AddNode(id string, data NodeData, position Position, classes []string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.elements[id] = &MemoryElement{
		Id:       id,
		IsNode:   true,
		Node:     data,
		Position: position,
		Classes:  slices.Clone(classes),
	}
}

func (self *MemoryGraph) UpdateNode(id string, data NodeData, position Position) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if element, ok := self.elements[id]; ok && element.IsNode {
		element.Node = data
		element.Position = position
	}
}

func (self *MemoryGraph) SetNodePosition(id string, position Position) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if element, ok := self.elements[id]; ok && element.IsNode {
		element.Position = position
	}
}

func (self *MemoryGraph) AddEdge(id string, data EdgeData, classes []string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.elements[id] = &MemoryElement{
		Id:      id,
		Edge:    data,
		Classes: slices.Clone(classes),
	}
}

func (self *MemoryGraph) UpdateEdge(id string, data EdgeData) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if element, ok := self.elements[id]; ok && !element.IsNode {
		element.Edge = data
	}
}

func (self *MemoryGraph) Remove(id string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	delete(self.elements, id)
}

func (self *MemoryGraph) AddClass(id string, class string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if element, ok := self.elements[id]; ok && !element.HasClass(class) {
		element.Classes = append(element.Classes, class)
	}
}

func (self *MemoryGraph) RemoveClass(id string, class string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if element, ok := self.elements[id]; ok {
		element.Classes = slices.DeleteFunc(element.Classes, func(c string) bool {
			return c == class
		})
	}
}

func (self *MemoryGraph) Clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	clear(self.elements)
}

// a copy of the element, or nil
func (self *MemoryGraph) Element(id string) *MemoryElement {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	element, ok := self.elements[id]
	if !ok {
		return nil
	}
	elementCopy := *element
	elementCopy.Classes = slices.Clone(element.Classes)
	return &elementCopy
}

func (self *MemoryGraph) HasClass(id string, class string) bool {
	element := self.Element(id)
	return element != nil && element.HasClass(class)
}

func (self *MemoryGraph) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.elements)
}
