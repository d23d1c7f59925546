package modelsync

import (
	"fmt"
	"net/http"
	"time"
)

const (
	TargetConceptsDataKey  = "targetConcepts"
	ChangeTargetConceptKey = "changeTargetConcept"
	IsTargetConceptClass   = "is-target-concept"
)

type TargetConceptRecord struct {
	IsTarget        bool    `json:"isTarget"`
	MinValue        float64 `json:"minValue"`
	IncludeMinValue bool    `json:"includeMinValue"`
	MaxValue        float64 `json:"maxValue"`
	IncludeMaxValue bool    `json:"includeMaxValue"`
}

type TargetConceptChange struct {
	ConceptId int64 `json:"conceptId"`
	TargetConceptRecord
	UpdatedAt time.Time `json:"updatedAt"`
}

type ChangeTargetConceptArgs struct {
	ConceptId     int64
	TargetConcept *TargetConceptRecord
}

type TargetConceptsPlugin struct {
	pluginBase

	changeTargetConcept *Command[*ChangeTargetConceptArgs, *ActionResult]
}

func NewTargetConceptsPlugin(api *ModelApi, bus *MessageBus) *TargetConceptsPlugin {
	return &TargetConceptsPlugin{
		pluginBase: pluginBase{name: TargetConceptsPluginName},
		changeTargetConcept: NewCommand[*ChangeTargetConceptArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeTargetConceptKey},
			func(args *ChangeTargetConceptArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/concepts/%d/change_target_concept", args.ConceptId), args.TargetConcept)
			},
		),
	}
}

func (self *TargetConceptsPlugin) ConceptDataKey() string {
	return TargetConceptsDataKey
}

func (self *TargetConceptsPlugin) ConceptClasses(concept *Concept) []string {
	if record, ok := GetPluginData[TargetConceptRecord](concept.PluginsData, TargetConceptsDataKey); ok && record.IsTarget {
		return []string{IsTargetConceptClass}
	}
	return []string{}
}

func (self *TargetConceptsPlugin) Styles() []*StyleRule {
	return []*StyleRule{
		{
			Selector: fmt.Sprintf("node:unselected.%s", IsTargetConceptClass),
			Style: map[string]string{
				"background-color": LimeLighten1,
			},
		},
	}
}

func (self *TargetConceptsPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeTargetConceptKey: self.changeTarget,
	}
}

func (self *TargetConceptsPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.changeTargetConcept}
}

func (self *TargetConceptsPlugin) ChangeTargetConcept() *Command[*ChangeTargetConceptArgs, *ActionResult] {
	return self.changeTargetConcept
}

func (self *TargetConceptsPlugin) changeTarget(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[TargetConceptChange](action)
	if err != nil {
		return err
	}
	concept, err := updateConceptRecord(
		target,
		action.Name,
		change.ConceptId,
		change.UpdatedAt,
		TargetConceptsDataKey,
		func(concept *Concept, record *TargetConceptRecord) error {
			*record = change.TargetConceptRecord
			return nil
		},
	)
	if err != nil || concept == nil {
		return err
	}
	toggleClass(target.Graph, ConceptElementId(concept.Id), IsTargetConceptClass, change.IsTarget)
	return nil
}

func (self *TargetConceptsPlugin) Close() {
	self.changeTargetConcept.Close()
}
