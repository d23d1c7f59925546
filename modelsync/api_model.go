package modelsync

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	GetModelKey          = "getModel"
	GetProjectsKey       = "getProjects"
	GetPluginsKey        = "getPlugins"
	SetProjectPluginsKey = "setProjectPlugins"
)

type ConceptIn struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Value       *float64 `json:"value"`
	XPosition   float64  `json:"xPosition"`
	YPosition   float64  `json:"yPosition"`
}

type ConceptMoveIn struct {
	XPosition float64 `json:"xPosition"`
	YPosition float64 `json:"yPosition"`
}

type ConnectionIn struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	SourceId    int64   `json:"sourceId"`
	TargetId    int64   `json:"targetId"`
}

type ConnectionChangeIn struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

type CreateConceptArgs struct {
	ProjectId int64
	Concept   *ConceptIn
}

type ChangeConceptArgs struct {
	ConceptId int64
	Concept   *ConceptIn
}

type MoveConceptArgs struct {
	ConceptId int64
	Move      *ConceptMoveIn
}

type CreateConnectionArgs struct {
	ProjectId  int64
	Connection *ConnectionIn
}

type ChangeConnectionArgs struct {
	ConnectionId int64
	Connection   *ConnectionChangeIn
}

type SetProjectPluginsArgs struct {
	ProjectId int64
	Plugins   []string
}

type ProjectGroupFilter string

const (
	ProjectGroupPublic  ProjectGroupFilter = "public"
	ProjectGroupPrivate ProjectGroupFilter = "private"
	ProjectGroupBoth    ProjectGroupFilter = "both"
)

// only set fields become query parameters
type ProjectsFilter struct {
	Group          ProjectGroupFilter
	Search         string
	IsArchived     *bool
	CreatedAtStart *time.Time
	CreatedAtEnd   *time.Time
	UpdatedAtStart *time.Time
	UpdatedAtEnd   *time.Time
	Page           int
	PerPage        int
}

func (self *ProjectsFilter) Values() url.Values {
	values := url.Values{}
	if self == nil {
		return values
	}
	if self.Group != "" {
		values.Set("group", string(self.Group))
	}
	if self.Search != "" {
		values.Set("search", self.Search)
	}
	if self.IsArchived != nil {
		values.Set("isArchived", strconv.FormatBool(*self.IsArchived))
	}
	setTime := func(key string, t *time.Time) {
		if t != nil {
			values.Set(key, t.UTC().Format(time.RFC3339))
		}
	}
	setTime("createdAtStart", self.CreatedAtStart)
	setTime("createdAtEnd", self.CreatedAtEnd)
	setTime("updatedAtStart", self.UpdatedAtStart)
	setTime("updatedAtEnd", self.UpdatedAtEnd)
	if 0 < self.Page {
		values.Set("page", strconv.Itoa(self.Page))
	}
	if 0 < self.PerPage {
		values.Set("perPage", strconv.Itoa(self.PerPage))
	}
	return values
}

type PluginInfo struct {
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	ConceptValueType    *ConceptValueType    `json:"conceptValueType"`
	ConnectionValueType *ConnectionValueType `json:"connectionValueType"`
	Dependencies        []string             `json:"dependencies"`
}

func NewGetModelCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[int64, *Model] {
	return NewCommand[int64, *Model](api, bus, options, func(projectId int64) *Request {
		return NewGetRequest(fmt.Sprintf("/projects/%d", projectId), nil)
	})
}

func NewCreateConceptCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*CreateConceptArgs, *ActionResult] {
	return NewCommand[*CreateConceptArgs, *ActionResult](api, bus, options, func(args *CreateConceptArgs) *Request {
		return NewBodyRequest(http.MethodPost, fmt.Sprintf("/projects/%d/concept", args.ProjectId), args.Concept)
	})
}

func NewChangeConceptCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*ChangeConceptArgs, *ActionResult] {
	return NewCommand[*ChangeConceptArgs, *ActionResult](api, bus, options, func(args *ChangeConceptArgs) *Request {
		return NewBodyRequest(http.MethodPut, fmt.Sprintf("/concepts/%d", args.ConceptId), args.Concept)
	})
}

func NewMoveConceptCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*MoveConceptArgs, *ActionResult] {
	return NewCommand[*MoveConceptArgs, *ActionResult](api, bus, options, func(args *MoveConceptArgs) *Request {
		return NewBodyRequest(http.MethodPatch, fmt.Sprintf("/concepts/%d/move", args.ConceptId), args.Move)
	})
}

func NewDeleteConceptCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[int64, *ActionResult] {
	return NewCommand[int64, *ActionResult](api, bus, options, func(conceptId int64) *Request {
		return NewBodyRequest(http.MethodDelete, fmt.Sprintf("/concepts/%d", conceptId), nil)
	})
}

func NewCreateConnectionCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*CreateConnectionArgs, *ActionResult] {
	return NewCommand[*CreateConnectionArgs, *ActionResult](api, bus, options, func(args *CreateConnectionArgs) *Request {
		return NewBodyRequest(http.MethodPost, fmt.Sprintf("/projects/%d/connection", args.ProjectId), args.Connection)
	})
}

func NewChangeConnectionCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*ChangeConnectionArgs, *ActionResult] {
	return NewCommand[*ChangeConnectionArgs, *ActionResult](api, bus, options, func(args *ChangeConnectionArgs) *Request {
		return NewBodyRequest(http.MethodPut, fmt.Sprintf("/connections/%d", args.ConnectionId), args.Connection)
	})
}

func NewDeleteConnectionCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[int64, *ActionResult] {
	return NewCommand[int64, *ActionResult](api, bus, options, func(connectionId int64) *Request {
		return NewBodyRequest(http.MethodDelete, fmt.Sprintf("/connections/%d", connectionId), nil)
	})
}

func NewGetProjectsCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*ProjectsFilter, *Page[*Project]] {
	return NewCommand[*ProjectsFilter, *Page[*Project]](api, bus, options, func(filter *ProjectsFilter) *Request {
		return NewGetRequest("/projects", filter.Values())
	})
}

func NewGetPluginsCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[struct{}, []*PluginInfo] {
	return NewCommand[struct{}, []*PluginInfo](api, bus, options, func(struct{}) *Request {
		return NewGetRequest("/plugins", nil)
	})
}

func NewSetProjectPluginsCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*SetProjectPluginsArgs, []string] {
	return NewCommand[*SetProjectPluginsArgs, []string](api, bus, options, func(args *SetProjectPluginsArgs) *Request {
		return NewBodyRequest(http.MethodPost, fmt.Sprintf("/projects/%d/plugins", args.ProjectId), args.Plugins)
	})
}
