package modelsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testApi(t *testing.T, handler http.HandlerFunc) (*ModelApi, func()) {
	server := httptest.NewServer(handler)
	api := NewModelApiWithDefaults(context.Background(), server.URL, NewClientContext("de-DE", "token"))
	return api, func() {
		api.Close()
		server.Close()
	}
}

func TestCallSuccess(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodGet)
		assert.Equal(t, r.URL.Path, "/projects/7")
		assert.Equal(t, r.Header.Get("Accept-Language"), "de-DE")
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer token")
		assert.NotEqual(t, r.Header.Get("X-Client-Instance"), "")
		w.Write([]byte(`{"project": {"id": 7, "name": "p", "plugins": []}, "concepts": [], "connections": []}`))
	})
	defer closeApi()

	result, err := Call[*Model](context.Background(), api, NewGetRequest("/projects/7", nil))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Success, true)
	assert.Equal(t, result.ErrorData, nil)
	assert.Equal(t, result.State(), ResultSuccess)
	assert.Equal(t, result.Data.Project.Id, int64(7))
}

func TestCallStructuredError(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": {"code": 422, "reason": "invalid", "description": "Name is taken"}}`))
	})
	defer closeApi()

	result, err := Call[*ActionResult](context.Background(), api, NewBodyRequest(http.MethodPost, "/projects/1/concept", &ConceptIn{Name: "a"}))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Success, false)
	assert.Equal(t, result.State(), ResultFailure)
	assert.Equal(t, result.ErrorData.IsStructured(), true)
	assert.Equal(t, result.ErrorData.Payload.Error.Code, 422)
	assert.Equal(t, result.ErrorData.Message(), "Name is taken")
}

func TestCallTextError(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("database unavailable"))
	})
	defer closeApi()

	result, err := Call[*Model](context.Background(), api, NewGetRequest("/projects/1", nil))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Success, false)
	assert.Equal(t, result.ErrorData.IsStructured(), false)
	assert.Equal(t, result.ErrorData.Message(), "database unavailable")

	result, err = Call[*Model](context.Background(), api, NewGetRequest("/empty", nil))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.ErrorData.Message(), http.StatusText(http.StatusBadGateway))
}

func TestCallTransportError(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	defer closeApi()

	result, err := Call[*Model](context.Background(), api, NewGetRequest("/projects/1", nil))
	assert.Equal(t, result, nil)
	assert.Equal(t, IsTransportError(err), true)

	// nothing listens here
	server := httptest.NewServer(http.NotFoundHandler())
	closedUrl := server.URL
	server.Close()
	closedApi := NewModelApiWithDefaults(context.Background(), closedUrl, NewClientContext("en", ""))
	defer closedApi.Close()
	result, err = Call[*Model](context.Background(), closedApi, NewGetRequest("/projects/1", nil))
	assert.Equal(t, result, nil)
	assert.Equal(t, IsTransportError(err), true)
}

func TestCallJsonBody(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodPatch)
		assert.Equal(t, r.Header.Get("Content-Type"), "application/json")
		var move ConceptMoveIn
		err := json.NewDecoder(r.Body).Decode(&move)
		assert.Equal(t, err, nil)
		assert.Equal(t, move, ConceptMoveIn{XPosition: 3, YPosition: 4})
		w.Write([]byte(`{"projectId": 1, "projectUpdatedAt": "2024-03-01T12:00:01Z", "name": "moveConcept", "data": {"id": 5}}`))
	})
	defer closeApi()

	result, err := Call[*ActionResult](context.Background(), api, NewBodyRequest(http.MethodPatch, "/concepts/5/move", &ConceptMoveIn{XPosition: 3, YPosition: 4}))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Data.Name, MoveConceptKey)
	assert.Equal(t, result.Data.ProjectUpdatedAt.Equal(testTime(1)), true)
}

func TestCallMultipartBody(t *testing.T) {
	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseMultipartForm(1 << 20)
		assert.Equal(t, err, nil)
		assert.Equal(t, r.FormValue("name"), "imported")
		file, header, err := r.FormFile("model")
		assert.Equal(t, err, nil)
		defer file.Close()
		assert.Equal(t, header.Filename, "model.json")
		content, _ := io.ReadAll(file)
		assert.Equal(t, string(content), `{"concepts": []}`)
		w.Write([]byte(`{"id": 3}`))
	})
	defer closeApi()

	body := &MultipartBody{
		Fields: map[string]string{"name": "imported"},
		Files: []*MultipartFile{
			{FieldName: "model", FileName: "model.json", Content: []byte(`{"concepts": []}`)},
		},
	}
	result, err := Call[*Project](context.Background(), api, NewBodyRequest(http.MethodPost, "/projects/import", body))
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Data.Id, int64(3))
}

func TestProjectsFilterQuery(t *testing.T) {
	isArchived := false
	createdAtStart := testTime(0)
	filter := &ProjectsFilter{
		Group:          ProjectGroupPrivate,
		Search:         "fuzzy",
		IsArchived:     &isArchived,
		CreatedAtStart: &createdAtStart,
		Page:           2,
		PerPage:        5,
	}
	values := filter.Values()
	assert.Equal(t, values.Get("group"), "private")
	assert.Equal(t, values.Get("search"), "fuzzy")
	assert.Equal(t, values.Get("isArchived"), "false")
	assert.Equal(t, values.Get("createdAtStart"), "2024-03-01T12:00:00Z")
	assert.Equal(t, values.Has("createdAtEnd"), false)
	assert.Equal(t, values.Get("page"), "2")
	assert.Equal(t, values.Get("perPage"), "5")

	var nilFilter *ProjectsFilter
	assert.Equal(t, len(nilFilter.Values()), 0)

	api, closeApi := testApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Query().Get("search"), "fuzzy")
		assert.Equal(t, r.URL.Query().Get("page"), "2")
		w.Write([]byte(`{"data": [{"id": 1}, {"id": 2}], "totalCount": 7, "totalPages": 2}`))
	})
	defer closeApi()

	getProjects := NewGetProjectsCommand(api, NewMessageBus(), CommandOptions{Key: GetProjectsKey})
	result, err := getProjects.Execute(context.Background(), filter)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(result.Data.Data), 2)
	assert.Equal(t, result.Data.TotalCount, 7)
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, NewClientContext("de-DE", "").AcceptLanguage(), "de-DE")
	assert.Equal(t, NewClientContext("", "").AcceptLanguage(), DefaultLocale)
	assert.Equal(t, NewClientContext("not a locale!", "").AcceptLanguage(), DefaultLocale)

	header := NewClientContext("en", "").Header()
	assert.Equal(t, header.Get("Authorization"), "")
}
