package modelsync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testRunsSession(t *testing.T, handler http.HandlerFunc) (*AdjustmentRunsSession, *MessageBus, func()) {
	server := httptest.NewServer(handler)
	bus := NewMessageBus()
	settings := DefaultAdjustmentRunsSettings()
	settings.PerPage = 3
	session := NewAdjustmentRunsSession(context.Background(), server.URL, "", NewClientContext("en", ""), 1, bus, settings)
	return session, bus, func() {
		session.Close()
		server.Close()
	}
}

func testRunIds(page *Page[*AdjustmentRun]) []int64 {
	ids := []int64{}
	for _, run := range page.Data {
		ids = append(ids, run.Id)
	}
	return ids
}

func TestAdjustmentRunsFetch(t *testing.T) {
	session, _, closeSession := testRunsSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/projects/1/adjustment_runs")
		assert.Equal(t, r.URL.Query().Get("perPage"), "3")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if r.URL.Query().Get("search") == "none" {
			w.Write([]byte(`{"data": [], "totalCount": 0, "totalPages": 0}`))
			return
		}
		w.Write([]byte(fmt.Sprintf(`{"data": [{"id": %d}], "totalCount": 4, "totalPages": 2}`, 10+page)))
	})
	defer closeSession()

	assert.Equal(t, session.Channel(), nil)

	err := session.Fetch(context.Background(), 2)
	assert.Equal(t, err, nil)
	assert.Equal(t, testRunIds(session.Page()), []int64{12})

	err = session.SetSearch(context.Background(), "none")
	assert.Equal(t, err, nil)
	assert.Equal(t, session.Cache().PageNumber(), 1)
	assert.Equal(t, len(session.Page().Data), 0)
}

func TestAdjustmentRunsFetchFailure(t *testing.T) {
	session, bus, closeSession := testRunsSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "reason": "forbidden", "description": "Not your project"}}`))
	})
	defer closeSession()

	subscription := bus.SubscribeGlobal()
	defer subscription.Close()

	err := session.Fetch(context.Background(), 1)
	failedErr, ok := err.(*FetchFailedError)
	assert.Equal(t, ok, true)
	assert.Equal(t, failedErr.ErrorData.Message(), "Not your project")
	assert.Equal(t, subscription.Error().Message, "Not your project")
}

func TestAdjustmentRunsFrames(t *testing.T) {
	session, bus, closeSession := testRunsSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeSession()

	session.Cache().SetPage(1, &Page[*AdjustmentRun]{
		Data:       []*AdjustmentRun{{Id: 3}, {Id: 2}, {Id: 1}},
		TotalCount: 3,
		TotalPages: 1,
	})

	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 4, "name": "adjust", "data": {"id": 4, "name": "run 4"}}`))
	page := session.Page()
	assert.Equal(t, testRunIds(page), []int64{4, 3, 2})
	assert.Equal(t, page.TotalCount, 4)
	assert.Equal(t, page.Data[0].Finished(), false)

	// a repeated adjust frame does not list the run twice
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 4, "name": "adjust", "data": {"id": 4, "name": "run 4 again"}}`))
	page = session.Page()
	assert.Equal(t, testRunIds(page), []int64{4, 3, 2})
	assert.Equal(t, page.TotalCount, 4)
	assert.Equal(t, page.Data[0].Name, "run 4 again")

	// runs without an id never reach the page
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 0, "name": "adjust", "data": {}}`))
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 0, "name": "adjust", "data": null}`))
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 0, "name": "adjustmentResult", "data": {"resultChromosome": {"id": 9}}}`))
	assert.Equal(t, testRunIds(session.Page()), []int64{4, 3, 2})
	assert.Equal(t, session.Page().TotalCount, 4)

	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 3, "name": "adjustmentResult", "data": {"id": 3, "resultChromosome": {"id": 9, "fitness": 0.75}}}`))
	page = session.Page()
	assert.Equal(t, page.Data[1].Finished(), true)
	assert.Equal(t, page.Data[1].ResultChromosome.Fitness, 0.75)

	// other projects and unknown names leave the page alone
	session.HandleFrame([]byte(`{"projectId": 2, "adjustmentRunId": 5, "name": "adjust", "data": {"id": 5}}`))
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 5, "name": "other", "data": {"id": 5}}`))
	session.HandleFrame([]byte(`garbage`))
	assert.Equal(t, testRunIds(session.Page()), []int64{4, 3, 2})

	subscription := bus.SubscribeGlobal()
	defer subscription.Close()
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 4, "name": "adjust", "message": "Population too small"}`))
	assert.Equal(t, subscription.Error().Key, AdjustKey)
	assert.Equal(t, subscription.Error().Message, "Population too small")
}

func TestAdjustmentRunsGenerations(t *testing.T) {
	session, _, closeSession := testRunsSession(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeSession()

	type received struct {
		runId      int64
		generation AdjustmentGeneration
	}
	var generations []received
	remove := session.AddGenerationCallback(func(adjustmentRunId int64, generation *AdjustmentGeneration) {
		generations = append(generations, received{runId: adjustmentRunId, generation: *generation})
	})

	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 4, "name": "adjustmentGeneration", "data": {"id": 30, "number": 3, "fitness": 0.5}}`))
	assert.Equal(t, generations, []received{
		{runId: 4, generation: AdjustmentGeneration{Id: 30, Number: 3, Fitness: 0.5}},
	})

	remove()
	session.HandleFrame([]byte(`{"projectId": 1, "adjustmentRunId": 4, "name": "adjustmentGeneration", "data": {"id": 31, "number": 4, "fitness": 0.6}}`))
	assert.Equal(t, len(generations), 1)
}

func TestAdjustmentRunsFilterQuery(t *testing.T) {
	includeStart := true
	createdAtStart := testTime(0)
	values := (&AdjustmentRunsFilter{
		Search:                "genetic",
		CreatedAtStart:        &createdAtStart,
		CreatedAtIncludeStart: &includeStart,
		Page:                  1,
	}).Values()
	assert.Equal(t, values.Get("search"), "genetic")
	assert.Equal(t, values.Get("createdAtIncludeStart"), "true")
	assert.Equal(t, values.Has("createdAtEnd"), false)
	assert.Equal(t, values.Has("perPage"), false)

	var nilFilter *AdjustmentRunsFilter
	assert.Equal(t, len(nilFilter.Values()), 0)
}
