package modelsync

import (
	"fmt"
	"net/http"
	"time"
)

const (
	ControlConceptsDataKey  = "controlConcepts"
	ChangeControlConceptKey = "changeControlConcept"
	IsControlConceptClass   = "is-control-concept"
)

type ControlConceptRecord struct {
	IsControl bool `json:"isControl"`
}

type ControlConceptChange struct {
	ConceptId     int64     `json:"conceptId"`
	IsControl     bool      `json:"isControl"`
	HasConstraint *bool     `json:"hasConstraint"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SetIsControlConceptArgs struct {
	ConceptId int64
	IsControl bool
}

type ControlConceptsPlugin struct {
	pluginBase

	setIsControl *Command[*SetIsControlConceptArgs, *ActionResult]
}

func NewControlConceptsPlugin(api *ModelApi, bus *MessageBus) *ControlConceptsPlugin {
	return &ControlConceptsPlugin{
		pluginBase: pluginBase{name: ControlConceptsPluginName},
		setIsControl: NewCommand[*SetIsControlConceptArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeControlConceptKey},
			func(args *SetIsControlConceptArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/concepts/%d/change_is_control", args.ConceptId), args.IsControl)
			},
		),
	}
}

func (self *ControlConceptsPlugin) ConceptDataKey() string {
	return ControlConceptsDataKey
}

func (self *ControlConceptsPlugin) ConceptClasses(concept *Concept) []string {
	if record, ok := GetPluginData[ControlConceptRecord](concept.PluginsData, ControlConceptsDataKey); ok && record.IsControl {
		return []string{IsControlConceptClass}
	}
	return []string{}
}

func (self *ControlConceptsPlugin) Styles() []*StyleRule {
	return []*StyleRule{
		{
			Selector: fmt.Sprintf("node:unselected.%s", IsControlConceptClass),
			Style: map[string]string{
				"background-color": AmberLighten1,
			},
		},
	}
}

func (self *ControlConceptsPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeControlConceptKey: self.changeControlConcept,
	}
}

func (self *ControlConceptsPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.setIsControl}
}

func (self *ControlConceptsPlugin) SetIsControl() *Command[*SetIsControlConceptArgs, *ActionResult] {
	return self.setIsControl
}

func (self *ControlConceptsPlugin) changeControlConcept(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ControlConceptChange](action)
	if err != nil {
		return err
	}
	concept, err := updateConceptRecord(
		target,
		action.Name,
		change.ConceptId,
		change.UpdatedAt,
		ControlConceptsDataKey,
		func(concept *Concept, record *ControlConceptRecord) error {
			record.IsControl = change.IsControl
			if change.HasConstraint == nil {
				return nil
			}
			constraint, ok := GetPluginData[ConstraintRecord](concept.PluginsData, ConceptConstraintsDataKey)
			if !ok {
				return nil
			}
			constraint.HasConstraint = *change.HasConstraint
			return SetPluginData(&concept.PluginsData, ConceptConstraintsDataKey, constraint)
		},
	)
	if err != nil || concept == nil {
		return err
	}
	toggleClass(target.Graph, ConceptElementId(concept.Id), IsControlConceptClass, change.IsControl)
	return nil
}

func (self *ControlConceptsPlugin) Close() {
	self.setIsControl.Close()
}
