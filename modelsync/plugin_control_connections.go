package modelsync

import (
	"fmt"
	"net/http"
	"time"
)

const (
	ControlConnectionsDataKey  = "controlConnections"
	ChangeControlConnectionKey = "changeControlConnection"
	IsControlConnectionClass   = "is-control-connection"
)

type ControlConnectionRecord struct {
	IsControl bool `json:"isControl"`
}

type ControlConnectionChange struct {
	ConnectionId  int64     `json:"connectionId"`
	IsControl     bool      `json:"isControl"`
	HasConstraint *bool     `json:"hasConstraint"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SetIsControlConnectionArgs struct {
	ConnectionId int64
	IsControl    bool
}

type ControlConnectionsPlugin struct {
	pluginBase

	setIsControl *Command[*SetIsControlConnectionArgs, *ActionResult]
}

func NewControlConnectionsPlugin(api *ModelApi, bus *MessageBus) *ControlConnectionsPlugin {
	return &ControlConnectionsPlugin{
		pluginBase: pluginBase{name: ControlConnectionsPluginName},
		setIsControl: NewCommand[*SetIsControlConnectionArgs, *ActionResult](
			api,
			bus,
			CommandOptions{Key: ChangeControlConnectionKey},
			func(args *SetIsControlConnectionArgs) *Request {
				return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/connections/%d/change_is_control", args.ConnectionId), args.IsControl)
			},
		),
	}
}

func (self *ControlConnectionsPlugin) ConnectionDataKey() string {
	return ControlConnectionsDataKey
}

func (self *ControlConnectionsPlugin) ConnectionClasses(connection *Connection) []string {
	if record, ok := GetPluginData[ControlConnectionRecord](connection.PluginsData, ControlConnectionsDataKey); ok && record.IsControl {
		return []string{IsControlConnectionClass}
	}
	return []string{}
}

func (self *ControlConnectionsPlugin) Styles() []*StyleRule {
	return []*StyleRule{
		{
			Selector: fmt.Sprintf("edge:unselected.%s", IsControlConnectionClass),
			Style: map[string]string{
				"line-color":         AmberLighten1,
				"target-arrow-color": AmberLighten1,
			},
		},
	}
}

func (self *ControlConnectionsPlugin) EventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		ChangeControlConnectionKey: self.changeControlConnection,
	}
}

func (self *ControlConnectionsPlugin) Commands() []ActionCommand {
	return []ActionCommand{self.setIsControl}
}

func (self *ControlConnectionsPlugin) SetIsControl() *Command[*SetIsControlConnectionArgs, *ActionResult] {
	return self.setIsControl
}

func (self *ControlConnectionsPlugin) changeControlConnection(target *UpdateTarget, action *ActionResult) error {
	change, err := DecodeActionData[ControlConnectionChange](action)
	if err != nil {
		return err
	}
	connection, err := updateConnectionRecord(
		target,
		action.Name,
		change.ConnectionId,
		change.UpdatedAt,
		ControlConnectionsDataKey,
		func(connection *Connection, record *ControlConnectionRecord) error {
			record.IsControl = change.IsControl
			if change.HasConstraint == nil {
				return nil
			}
			constraint, ok := GetPluginData[ConstraintRecord](connection.PluginsData, ConnectionConstraintsDataKey)
			if !ok {
				return nil
			}
			constraint.HasConstraint = *change.HasConstraint
			return SetPluginData(&connection.PluginsData, ConnectionConstraintsDataKey, constraint)
		},
	)
	if err != nil || connection == nil {
		return err
	}
	toggleClass(target.Graph, ConnectionElementId(connection.Id), IsControlConnectionClass, change.IsControl)
	return nil
}

func (self *ControlConnectionsPlugin) Close() {
	self.setIsControl.Close()
}
