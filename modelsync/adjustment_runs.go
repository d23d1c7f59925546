package modelsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
)

// adjustment run channel event kinds
const (
	AdjustKey               = "adjust"
	AdjustmentResultKey     = "adjustmentResult"
	AdjustmentGenerationKey = "adjustmentGeneration"
	GetAdjustmentRunsKey    = "getAdjustmentRuns"
)

type StopCondition struct {
	MaxGenerations         int     `json:"maxGenerations"`
	MaxWithoutImprovements int     `json:"maxWithoutImprovements"`
	Error                  float64 `json:"error"`
}

type AdjustmentIn struct {
	Name                   string           `json:"name"`
	Description            string           `json:"description"`
	MaxModelTime           int              `json:"maxModelTime"`
	DynamicModelType       DynamicModelType `json:"dynamicModelType"`
	GenerationSize         int              `json:"generationSize"`
	GenerationSaveInterval int              `json:"generationSaveInterval"`
	StopCondition          StopCondition    `json:"stopCondition"`
}

type AdjustArgs struct {
	ProjectId  int64
	Adjustment *AdjustmentIn
}

type GetAdjustmentRunsArgs struct {
	ProjectId int64
	Filter    *AdjustmentRunsFilter
}

type AdjustmentConceptValue struct {
	Id        int64   `json:"id"`
	ConceptId int64   `json:"conceptId"`
	Value     float64 `json:"value"`
}

type AdjustmentConnectionValue struct {
	Id           int64   `json:"id"`
	ConnectionId int64   `json:"connectionId"`
	Value        float64 `json:"value"`
}

// the best chromosome of a run with the generation it came from
type AdjustmentResultChromosome struct {
	Id                int64                        `json:"id"`
	Number            int                          `json:"number"`
	Fitness           float64                      `json:"fitness"`
	GenerationId      int64                        `json:"generationId"`
	GenerationNumber  int                          `json:"generationNumber"`
	GenerationFitness float64                      `json:"generationFitness"`
	ConceptValues     []*AdjustmentConceptValue    `json:"conceptValues"`
	ConnectionValues  []*AdjustmentConnectionValue `json:"connectionValues"`
}

type AdjustmentRun struct {
	Id                     int64            `json:"id"`
	ModelCopyId            int64            `json:"modelCopyId"`
	Name                   string           `json:"name"`
	Description            string           `json:"description"`
	MaxModelTime           int              `json:"maxModelTime"`
	DynamicModelType       DynamicModelType `json:"dynamicModelType"`
	GenerationSize         int              `json:"generationSize"`
	GenerationSaveInterval int              `json:"generationSaveInterval"`
	StopCondition          StopCondition    `json:"stopCondition"`
	CreatedAt              time.Time        `json:"createdAt"`
	// nil while the run is in progress
	ResultChromosome *AdjustmentResultChromosome `json:"resultChromosome"`
}

func (self *AdjustmentRun) GetId() int64 {
	return self.Id
}

func (self *AdjustmentRun) Finished() bool {
	return self.ResultChromosome != nil
}

type AdjustmentGeneration struct {
	Id      int64   `json:"id"`
	Number  int     `json:"number"`
	Fitness float64 `json:"fitness"`
}

// only set fields become query parameters
type AdjustmentRunsFilter struct {
	Search                string
	CreatedAtStart        *time.Time
	CreatedAtIncludeStart *bool
	CreatedAtEnd          *time.Time
	CreatedAtIncludeEnd   *bool
	Page                  int
	PerPage               int
}

func (self *AdjustmentRunsFilter) Values() url.Values {
	values := url.Values{}
	if self == nil {
		return values
	}
	if self.Search != "" {
		values.Set("search", self.Search)
	}
	if self.CreatedAtStart != nil {
		values.Set("createdAtStart", self.CreatedAtStart.UTC().Format(time.RFC3339))
	}
	if self.CreatedAtIncludeStart != nil {
		values.Set("createdAtIncludeStart", strconv.FormatBool(*self.CreatedAtIncludeStart))
	}
	if self.CreatedAtEnd != nil {
		values.Set("createdAtEnd", self.CreatedAtEnd.UTC().Format(time.RFC3339))
	}
	if self.CreatedAtIncludeEnd != nil {
		values.Set("createdAtIncludeEnd", strconv.FormatBool(*self.CreatedAtIncludeEnd))
	}
	if 0 < self.Page {
		values.Set("page", strconv.Itoa(self.Page))
	}
	if 0 < self.PerPage {
		values.Set("perPage", strconv.Itoa(self.PerPage))
	}
	return values
}

func NewAdjustCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*AdjustArgs, *AdjustmentRun] {
	return NewCommand[*AdjustArgs, *AdjustmentRun](api, bus, options, func(args *AdjustArgs) *Request {
		return NewBodyRequest(http.MethodPost, fmt.Sprintf("/projects/%d/adjust", args.ProjectId), args.Adjustment)
	})
}

func NewGetAdjustmentRunsCommand(api *ModelApi, bus *MessageBus, options CommandOptions) *Command[*GetAdjustmentRunsArgs, *Page[*AdjustmentRun]] {
	return NewCommand[*GetAdjustmentRunsArgs, *Page[*AdjustmentRun]](api, bus, options, func(args *GetAdjustmentRunsArgs) *Request {
		return NewGetRequest(fmt.Sprintf("/projects/%d/adjustment_runs", args.ProjectId), args.Filter.Values())
	})
}

// `{projectId, adjustmentRunId, name, data}`
type AdjustmentRunAction struct {
	ProjectId       int64           `json:"projectId"`
	AdjustmentRunId int64           `json:"adjustmentRunId"`
	Name            string          `json:"name"`
	Data            json.RawMessage `json:"data"`
}

// `{projectId, adjustmentRunId, name, message}`
type AdjustmentRunActionError struct {
	ProjectId       int64  `json:"projectId"`
	AdjustmentRunId int64  `json:"adjustmentRunId"`
	Name            string `json:"name"`
	Message         string `json:"message"`
}

func ParseAdjustmentRunFrame(frame []byte) (*AdjustmentRunAction, *AdjustmentRunActionError, error) {
	var f struct {
		AdjustmentRunAction
		Message *string `json:"message"`
	}
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
		action := f.AdjustmentRunAction
		return &action, nil, nil
	}
	if f.Message != nil {
		return nil, &AdjustmentRunActionError{
			ProjectId:       f.ProjectId,
			AdjustmentRunId: f.AdjustmentRunId,
			Name:            f.Name,
			Message:         *f.Message,
		}, nil
	}
	return nil, nil, fmt.Errorf("%w: neither data nor message", ErrInvalidFrame)
}

type AdjustmentGenerationFunction = func(adjustmentRunId int64, generation *AdjustmentGeneration)

type AdjustmentRunsSettings struct {
	PerPage int
	Api     *ApiSettings
	Channel *ChannelSettings
}

func DefaultAdjustmentRunsSettings() *AdjustmentRunsSettings {
	return &AdjustmentRunsSettings{
		PerPage: 10,
		Api:     DefaultApiSettings(),
		Channel: DefaultChannelSettings(),
	}
}

// AdjustmentRunsSession keeps a page of a project's adjustment runs in step with
// the adjustment runs channel of the project.
type AdjustmentRunsSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	projectId int64
	bus       *MessageBus
	api       *ModelApi
	channel   *LiveChannel

	getAdjustmentRuns *Command[*GetAdjustmentRunsArgs, *Page[*AdjustmentRun]]
	cache             *PageCache[*AdjustmentRun]

	generationCallbacks *CallbackList[AdjustmentGenerationFunction]

	stateLock sync.Mutex
	search    string
}

// `wsUrl` may be empty for a session without a live channel
func NewAdjustmentRunsSession(
	ctx context.Context,
	apiUrl string,
	wsUrl string,
	clientContext *ClientContext,
	projectId int64,
	bus *MessageBus,
	settings *AdjustmentRunsSettings,
) *AdjustmentRunsSession {
	cancelCtx, cancel := context.WithCancel(ctx)

	api := NewModelApi(cancelCtx, apiUrl, clientContext, settings.Api)
	session := &AdjustmentRunsSession{
		ctx:                 cancelCtx,
		cancel:              cancel,
		projectId:           projectId,
		bus:                 bus,
		api:                 api,
		getAdjustmentRuns:   NewGetAdjustmentRunsCommand(api, bus, CommandOptions{Key: GetAdjustmentRunsKey}),
		generationCallbacks: NewCallbackList[AdjustmentGenerationFunction](),
	}
	session.cache = NewPageCache[*AdjustmentRun](settings.PerPage, session.fetchPage)

	if wsUrl != "" {
		session.channel = NewLiveChannel(
			cancelCtx,
			AdjustmentRunsChannelUrl(wsUrl, projectId),
			clientContext,
			settings.Channel,
		)
		session.channel.AddReceiveCallback(session.HandleFrame)
	}
	return session
}

// fetches page 1 and opens the channel
func OpenAdjustmentRunsSession(
	ctx context.Context,
	apiUrl string,
	wsUrl string,
	clientContext *ClientContext,
	projectId int64,
	bus *MessageBus,
	settings *AdjustmentRunsSettings,
) (*AdjustmentRunsSession, error) {
	session := NewAdjustmentRunsSession(ctx, apiUrl, wsUrl, clientContext, projectId, bus, settings)
	if err := session.cache.Fetch(ctx, 1); err != nil {
		session.Close()
		return nil, err
	}
	if session.channel != nil {
		session.channel.Open()
	}
	return session, nil
}

func (self *AdjustmentRunsSession) fetchPage(ctx context.Context, page int, perPage int) (*Page[*AdjustmentRun], error) {
	self.stateLock.Lock()
	search := self.search
	self.stateLock.Unlock()

	result, err := self.getAdjustmentRuns.Execute(ctx, &GetAdjustmentRunsArgs{
		ProjectId: self.projectId,
		Filter: &AdjustmentRunsFilter{
			Search:  search,
			Page:    page,
			PerPage: perPage,
		},
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &FetchFailedError{
			Key:       GetAdjustmentRunsKey,
			ErrorData: result.ErrorData,
		}
	}
	return result.Data, nil
}

func (self *AdjustmentRunsSession) SetSearch(ctx context.Context, search string) error {
	self.stateLock.Lock()
	self.search = search
	self.stateLock.Unlock()
	return self.cache.Fetch(ctx, 1)
}

func (self *AdjustmentRunsSession) Fetch(ctx context.Context, page int) error {
	return self.cache.Fetch(ctx, page)
}

func (self *AdjustmentRunsSession) Page() *Page[*AdjustmentRun] {
	return self.cache.Page()
}

func (self *AdjustmentRunsSession) Cache() *PageCache[*AdjustmentRun] {
	return self.cache
}

func (self *AdjustmentRunsSession) Channel() *LiveChannel {
	return self.channel
}

func (self *AdjustmentRunsSession) AddGenerationCallback(generationCallback AdjustmentGenerationFunction) func() {
	callbackId := self.generationCallbacks.Add(generationCallback)
	return func() {
		self.generationCallbacks.Remove(callbackId)
	}
}

func (self *AdjustmentRunsSession) HandleFrame(frame []byte) {
	action, actionErr, err := ParseAdjustmentRunFrame(frame)
	if err != nil {
		glog.V(1).Infof("[s]adjustment runs drop frame %s = %s\n", frameSummary(frame), err)
		return
	}
	if actionErr != nil {
		self.bus.EmitError(actionErr.Name, actionErr.Message)
		return
	}
	if action.ProjectId != 0 && action.ProjectId != self.projectId {
		glog.V(1).Infof("[s]adjustment runs drop frame for project %d\n", action.ProjectId)
		return
	}

	switch action.Name {
	case AdjustKey:
		var run AdjustmentRun
		if err := json.Unmarshal(action.Data, &run); err != nil {
			glog.Infof("[s]%s run=%d decode error = %s\n", action.Name, action.AdjustmentRunId, err)
			return
		}
		if run.Id == 0 {
			glog.Infof("[s]%s run without id dropped\n", action.Name)
			return
		}
		if err := self.cache.InsertAtTop(self.ctx, &run); err != nil {
			glog.Infof("[s]%s run=%d refetch error = %s\n", action.Name, run.Id, err)
		}
	case AdjustmentResultKey:
		var run AdjustmentRun
		if err := json.Unmarshal(action.Data, &run); err != nil {
			glog.Infof("[s]%s run=%d decode error = %s\n", action.Name, action.AdjustmentRunId, err)
			return
		}
		if run.Id == 0 {
			glog.Infof("[s]%s run without id dropped\n", action.Name)
			return
		}
		if !self.cache.Replace(&run) {
			glog.V(1).Infof("[s]%s run=%d not on page\n", action.Name, run.Id)
		}
	case AdjustmentGenerationKey:
		var generation AdjustmentGeneration
		if err := json.Unmarshal(action.Data, &generation); err != nil {
			glog.Infof("[s]%s run=%d decode error = %s\n", action.Name, action.AdjustmentRunId, err)
			return
		}
		for _, generationCallback := range self.generationCallbacks.Get() {
			HandleError(func() {
				generationCallback(action.AdjustmentRunId, &generation)
			})
		}
	default:
		glog.V(1).Infof("[s]adjustment runs ignore %s\n", action.Name)
	}
}

func (self *AdjustmentRunsSession) Close() {
	self.cancel()
	if self.channel != nil {
		self.channel.Close()
	}
	self.getAdjustmentRuns.Close()
	self.generationCallbacks.Clear()
	self.api.Close()
}

func (self *AdjustmentRunsSession) Done() <-chan struct{} {
	return self.ctx.Done()
}
