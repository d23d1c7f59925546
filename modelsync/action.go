package modelsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// core event kinds. Plugins add their own names through the registry.
const (
	CreateConceptKey    = "createConcept"
	ChangeConceptKey    = "changeConcept"
	MoveConceptKey      = "moveConcept"
	DeleteConceptKey    = "deleteConcept"
	CreateConnectionKey = "createConnection"
	ChangeConnectionKey = "changeConnection"
	DeleteConnectionKey = "deleteConnection"
)

var ErrInvalidFrame = errors.New("invalid frame")

// the frame parsed but its payload cannot describe an entity
var ErrInvalidPayload = errors.New("invalid payload")

// `{projectId, projectUpdatedAt, name, data}`. The `name` selects the shape of `data`.
// This is both the response of a model command and a live channel event.
type ActionResult struct {
	ProjectId        int64           `json:"projectId"`
	ProjectUpdatedAt time.Time       `json:"projectUpdatedAt"`
	Name             string          `json:"name"`
	Data             json.RawMessage `json:"data"`
}

// `{projectId, name, message}`, a server side rejection
type ActionError struct {
	ProjectId int64  `json:"projectId"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

func NewActionResult(name string, projectId int64, projectUpdatedAt time.Time, data any) (*ActionResult, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		ProjectId:        projectId,
		ProjectUpdatedAt: projectUpdatedAt,
		Name:             name,
		Data:             dataBytes,
	}, nil
}

func DecodeActionData[T any](action *ActionResult) (*T, error) {
	var data T
	if err := json.Unmarshal(action.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: %w", action.Name, err)
	}
	return &data, nil
}

type actionFrame struct {
	ProjectId        int64           `json:"projectId"`
	ProjectUpdatedAt *time.Time      `json:"projectUpdatedAt"`
	Name             string          `json:"name"`
	Data             json.RawMessage `json:"data"`
	Message          *string         `json:"message"`
}

// validates the shape of a frame. Exactly one of the returned values is non-nil
// when err is nil.
func ParseActionFrame(frame []byte) (*ActionResult, *ActionError, error) {
	var f actionFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidFrame, err)
	}
	if f.Name == "" {
		return nil, nil, fmt.Errorf("%w: missing name", ErrInvalidFrame)
	}
	hasData, err := objectData(f.Data)
	if err != nil {
		return nil, nil, err
	}
	if hasData {
		if f.ProjectUpdatedAt == nil {
			return nil, nil, fmt.Errorf("%w: missing projectUpdatedAt", ErrInvalidFrame)
		}
		return &ActionResult{
			ProjectId:        f.ProjectId,
			ProjectUpdatedAt: *f.ProjectUpdatedAt,
			Name:             f.Name,
			Data:             f.Data,
		}, nil, nil
	}
	if f.Message != nil {
		return nil, &ActionError{
			ProjectId: f.ProjectId,
			Name:      f.Name,
			Message:   *f.Message,
		}, nil
	}
	return nil, nil, fmt.Errorf("%w: neither data nor message", ErrInvalidFrame)
}

// false for a missing or `null` data field. Any other data must be an object.
func objectData(data json.RawMessage) (bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return false, nil
	}
	if data[0] != '{' {
		return false, fmt.Errorf("%w: data is not an object", ErrInvalidFrame)
	}
	return true, nil
}

func requireId(kind EntityKind, id int64) error {
	if id == 0 {
		return fmt.Errorf("%w: %s without id", ErrInvalidPayload, kind)
	}
	return nil
}

type ConceptChange struct {
	Id          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Value       *float64  `json:"value"`
	XPosition   float64   `json:"xPosition"`
	YPosition   float64   `json:"yPosition"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ConceptMove struct {
	Id        int64     `json:"id"`
	XPosition float64   `json:"xPosition"`
	YPosition float64   `json:"yPosition"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ConnectionChange struct {
	Id          int64     `json:"id"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// payload of both delete kinds
type EntityDelete struct {
	Id        int64     `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// every payload carries `updatedAt`
func actionUpdatedAt(action *ActionResult) (time.Time, error) {
	var data struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(action.Data, &data); err != nil {
		return time.Time{}, fmt.Errorf("%s updatedAt: %w", action.Name, err)
	}
	return data.UpdatedAt, nil
}
