package modelsync

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseActionFrame(t *testing.T) {
	action, actionError, err := ParseActionFrame([]byte(`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "moveConcept", "data": {"id": 4, "xPosition": 1, "yPosition": 2, "updatedAt": "2024-03-01T12:00:02Z"}}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, actionError, nil)
	assert.Equal(t, action.Name, MoveConceptKey)
	assert.Equal(t, action.ProjectId, int64(1))
	updatedAt, err := actionUpdatedAt(action)
	assert.Equal(t, err, nil)
	assert.Equal(t, updatedAt.Equal(testTime(2)), true)

	move, err := DecodeActionData[ConceptMove](action)
	assert.Equal(t, err, nil)
	assert.Equal(t, move.Id, int64(4))
	assert.Equal(t, move.YPosition, float64(2))

	action, actionError, err = ParseActionFrame([]byte(`{"projectId": 1, "name": "createConcept", "message": "Name is taken"}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, action, nil)
	assert.Equal(t, actionError.Message, "Name is taken")
	assert.Equal(t, actionError.Name, CreateConceptKey)
}

func TestActionUpdatedAtUnreadable(t *testing.T) {
	action, _, err := ParseActionFrame([]byte(`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "moveConcept", "data": {"id": 4, "updatedAt": "soon"}}`))
	assert.Equal(t, err, nil)
	_, err = actionUpdatedAt(action)
	assert.NotEqual(t, err, nil)
}

func TestParseActionFrameInvalid(t *testing.T) {
	frames := []string{
		`not json`,
		`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "data": {}}`,
		`{"projectId": 1, "name": "moveConcept", "data": {}}`,
		`{"projectId": 1, "name": "moveConcept"}`,
		`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "createConcept", "data": null}`,
		`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "createConcept", "data": "oops"}`,
		`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "createConcept", "data": []}`,
		`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:02Z", "name": "createConcept", "data": 4}`,
	}
	for _, frame := range frames {
		action, actionError, err := ParseActionFrame([]byte(frame))
		assert.Equal(t, action, nil)
		assert.Equal(t, actionError, nil)
		assert.Equal(t, errors.Is(err, ErrInvalidFrame), true)
	}
}
