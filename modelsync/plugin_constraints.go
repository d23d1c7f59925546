package modelsync

import (
	"fmt"
	"net/http"
	"time"
)

const (
	ConceptConstraintsDataKey     = "conceptConstraints"
	ChangeConceptConstraintKey    = "changeConceptConstraint"
	ConnectionConstraintsDataKey  = "connectionConstraints"
	ChangeConnectionConstraintKey = "changeConnectionConstraint"
)

// a value range, bounds optionally inclusive
type ConstraintRecord struct {
	HasConstraint   bool    `json:"hasConstraint"`
	MinValue        float64 `json:"minValue"`
	IncludeMinValue bool    `json:"includeMinValue"`
	MaxValue        float64 `json:"maxValue"`
	IncludeMaxValue bool    `json:"includeMaxValue"`
}

func (self *ConstraintRecord) Contains(value float64) bool {
	if !self.HasConstraint {
		return true
	}
	if value < self.MinValue || (value == self.MinValue && !self.IncludeMinValue) {
		return false
	}
	if self.MaxValue < value || (value == self.MaxValue && !self.IncludeMaxValue) {
		return false
	}
	return true
}

type ConceptConstraintChange struct {
	ConceptId int64 `json:"conceptId"`
	ConstraintRecord
	UpdatedAt time.Time `json:"updatedAt"`
}

type ConnectionConstraintChange struct {
	ConnectionId int64 `json:"connectionId"`
	ConstraintRecord
	UpdatedAt time.Time `json:"updatedAt"`
}

type ChangeConstraintArgs struct {
	// concept or connection id, per plugin
	EntityId   int64
	Constraint *ConstraintRecord
}

type ConceptConstraintsPlugin struct {
	pluginBase

	changeConstraint *Command[*ChangeConstraintArgs, *ActionResult]
}

func NewConceptConstraintsPlugin(api *ModelApi, bus *MessageBus) *ConceptConstraintsPlugin {
	return &ConceptConstraintsPlugin{
		pluginBase: pluginBase{name: ConceptConstraintsPluginName},
		changeConstraint: NewCommand[*ChangeConstraintArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeConceptConstraintKey},
			func(args *ChangeConstraintArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/concepts/%d/change_concept_constraint", args.EntityId), args.Constraint)
			},
		),
	}
}

func (self *ConceptConstraintsPlugin) ConceptDataKey() string {
	return ConceptConstraintsDataKey
}

func (self *ConceptConstraintsPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeConceptConstraintKey: self.changeConceptConstraint,
	}
}

func (self *ConceptConstraintsPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.changeConstraint}
}

func (self *ConceptConstraintsPlugin) ChangeConceptConstraint() *Command[*ChangeConstraintArgs, *ActionResult] {
	return self.changeConstraint
}

func (self *ConceptConstraintsPlugin) changeConceptConstraint(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ConceptConstraintChange](action)
	if err != nil {
		return err
	}
	_, err = updateConceptRecord(
		target,
		action.Name,
		change.ConceptId,
		change.UpdatedAt,
		ConceptConstraintsDataKey,
		func(concept *Concept, record *ConstraintRecord) error {
			*record = change.ConstraintRecord
			return nil
		},
	)
	return err
}

func (self *ConceptConstraintsPlugin) Close() {
	self.changeConstraint.Close()
}

type ConnectionConstraintsPlugin struct {
	pluginBase

	changeConstraint *Command[*ChangeConstraintArgs, *ActionResult]
}

func NewConnectionConstraintsPlugin(api *ModelApi, bus *MessageBus) *ConnectionConstraintsPlugin {
	return &ConnectionConstraintsPlugin{
		pluginBase: pluginBase{name: ConnectionConstraintsPluginName},
		changeConstraint: NewCommand[*ChangeConstraintArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeConnectionConstraintKey},
			func(args *ChangeConstraintArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/connections/%d/change_connection_constraint", args.EntityId), args.Constraint)
			},
		),
	}
}

func (self *ConnectionConstraintsPlugin) ConnectionDataKey() string {
	return ConnectionConstraintsDataKey
}

func (self *ConnectionConstraintsPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeConnectionConstraintKey: self.changeConnectionConstraint,
	}
}

func (self *ConnectionConstraintsPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.changeConstraint}
}

func (self *ConnectionConstraintsPlugin) ChangeConnectionConstraint() *Command[*ChangeConstraintArgs, *ActionResult] {
	return self.changeConstraint
}

func (self *ConnectionConstraintsPlugin) changeConnectionConstraint(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ConnectionConstraintChange](action)
	if err != nil {
		return err
	}
	_, err = updateConnectionRecord(
		target,
		action.Name,
		change.ConnectionId,
		change.UpdatedAt,
		ConnectionConstraintsDataKey,
		func(connection *Connection, record *ConstraintRecord) error {
			*record = change.ConstraintRecord
			return nil
		},
	)
	return err
}

func (self *ConnectionConstraintsPlugin) Close() {
	self.changeConstraint.Close()
}
