package modelsync

import (
	"fmt"
	"net/http"
	"time"
)

const (
	AdjustmentDataKey         = "adjustment"
	ChangeDynamicModelTypeKey = "changeDynamicModelType"
)

type DynamicModelType string

const (
	DynamicModelTypeDeltaDelta DynamicModelType = "delta_delta"
	DynamicModelTypeDeltaValue DynamicModelType = "delta_value"
	DynamicModelTypeValueDelta DynamicModelType = "value_delta"
	DynamicModelTypeValueValue DynamicModelType = "value_value"
)

func ParseDynamicModelType(value string) (DynamicModelType, error) {
	switch t := DynamicModelType(value); t {
	case DynamicModelTypeDeltaDelta, DynamicModelTypeDeltaValue, DynamicModelTypeValueDelta, DynamicModelTypeValueValue:
		return t, nil
	default:
		return "", fmt.Errorf("unknown dynamic model type: %s", value)
	}
}

type AdjustmentRecord struct {
	// nil when unset
	DynamicModelType *DynamicModelType `json:"dynamicModelType"`
}

type DynamicModelTypeChange struct {
	ConceptId        int64             `json:"conceptId"`
	DynamicModelType *DynamicModelType `json:"dynamicModelType"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type ChangeDynamicModelTypeArgs struct {
	ConceptId        int64
	DynamicModelType *DynamicModelType
}

// AdjustmentPlugin owns the dynamic model type of each concept and starts
// adjustment runs. Runs are followed with `AdjustmentRunsSession`.
type AdjustmentPlugin struct {
	pluginBase

	changeDynamicModelType *Command[*ChangeDynamicModelTypeArgs, *ActionResult]
	adjust                 *Command[*AdjustArgs, *AdjustmentRun]
	getAdjustmentRuns      *Command[*GetAdjustmentRunsArgs, *Page[*AdjustmentRun]]
}

func NewAdjustmentPlugin(api *ModelApi, bus *MessageBus) *AdjustmentPlugin {
	return &AdjustmentPlugin{
		pluginBase: pluginBase{name: AdjustmentPluginName},
		changeDynamicModelType: NewCommand[*ChangeDynamicModelTypeArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeDynamicModelTypeKey},
			func(args *ChangeDynamicModelTypeArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/concepts/%d/change_dynamic_model_type", args.ConceptId), args.DynamicModelType)
			},
		),
		adjust:            NewAdjustCommand(api, bus, CommandOptions{Key: AdjustKey}),
		getAdjustmentRuns: NewGetAdjustmentRunsCommand(api, bus, CommandOptions{Key: GetAdjustmentRunsKey}),
	}
}

func (self *AdjustmentPlugin) ConceptDataKey() string {
	return AdjustmentDataKey
}

func (self *AdjustmentPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeDynamicModelTypeKey: self.changeDynamicModel,
	}
}

func (self *AdjustmentPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.changeDynamicModelType}
}

func (self *AdjustmentPlugin) ChangeDynamicModelType() *Command[*ChangeDynamicModelTypeArgs, *ActionResult] {
	return self.changeDynamicModelType
}

func (self *AdjustmentPlugin) Adjust() *Command[*AdjustArgs, *AdjustmentRun] {
	return self.adjust
}

func (self *AdjustmentPlugin) GetAdjustmentRuns() *Command[*GetAdjustmentRunsArgs, *Page[*AdjustmentRun]] {
	return self.getAdjustmentRuns
}

func (self *AdjustmentPlugin) changeDynamicModel(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[DynamicModelTypeChange](action)
	if err != nil {
		return err
	}
	_, err = updateConceptRecord(
		target,
		action.Name,
		change.ConceptId,
		change.UpdatedAt,
		AdjustmentDataKey,
		func(concept *Concept, record *AdjustmentRecord) error {
			record.DynamicModelType = change.DynamicModelType
			return nil
		},
	)
	return err
}

func (self *AdjustmentPlugin) Close() {
	self.changeDynamicModelType.Close()
	self.adjust.Close()
	self.getAdjustmentRuns.Close()
}
