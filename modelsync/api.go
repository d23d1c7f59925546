package modelsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/text/language"
)

const DefaultLocale = "en"

// the explicit per-view context that replaces ambient session state.
// Passed to the api, channel and session constructors.
type ClientContext struct {
	Locale     string
	Jwt        string
	InstanceId Id
}

func NewClientContext(locale string, jwt string) *ClientContext {
	return &ClientContext{
		Locale:     locale,
		Jwt:        jwt,
		InstanceId: NewId(),
	}
}

// normalized BCP 47 tag, falling back to `DefaultLocale`
func (self *ClientContext) AcceptLanguage() string {
	tag, err := language.Parse(self.Locale)
	if err != nil || tag == language.Und {
		return DefaultLocale
	}
	return tag.String()
}

// headers attached to every outbound call and channel dial
func (self *ClientContext) Header() http.Header {
	header := http.Header{}
	header.Set("Accept-Language", self.AcceptLanguage())
	if self.Jwt != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", self.Jwt))
	}
	header.Set("X-Client-Instance", self.InstanceId.String())
	return header
}

type ApiSettings struct {
	HttpTimeout        time.Duration
	HttpConnectTimeout time.Duration
	HttpTlsTimeout     time.Duration
}

func DefaultApiSettings() *ApiSettings {
	return &ApiSettings{
		HttpTimeout:        60 * time.Second,
		HttpConnectTimeout: 5 * time.Second,
		HttpTlsTimeout:     5 * time.Second,
	}
}

type ModelApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl        string
	clientContext *ClientContext

	client *http.Client
}

func NewModelApiWithDefaults(ctx context.Context, apiUrl string, clientContext *ClientContext) *ModelApi {
	return NewModelApi(ctx, apiUrl, clientContext, DefaultApiSettings())
}

func NewModelApi(ctx context.Context, apiUrl string, clientContext *ClientContext, settings *ApiSettings) *ModelApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: settings.HttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: settings.HttpTlsTimeout,
	}

	return &ModelApi{
		ctx:           cancelCtx,
		cancel:        cancel,
		apiUrl:        strings.TrimRight(apiUrl, "/"),
		clientContext: clientContext,
		client: &http.Client{
			Transport: transport,
			Timeout:   settings.HttpTimeout,
		},
	}
}

func (self *ModelApi) ClientContext() *ClientContext {
	return self.clientContext
}

func (self *ModelApi) Close() {
	self.cancel()
	self.client.CloseIdleConnections()
}

// a failure outside the expected failure class: network errors,
// and success responses that cannot be decoded
type TransportError struct {
	Method     string
	Url        string
	StatusCode int
	Err        error
}

func (self *TransportError) Error() string {
	if self.StatusCode != 0 {
		return fmt.Sprintf("%s %s (%d): %s", self.Method, self.Url, self.StatusCode, self.Err)
	}
	return fmt.Sprintf("%s %s: %s", self.Method, self.Url, self.Err)
}

func (self *TransportError) Unwrap() error {
	return self.Err
}

type MultipartFile struct {
	FieldName string
	FileName  string
	Content   []byte
}

type MultipartBody struct {
	Fields map[string]string
	Files  []*MultipartFile
}

func (self *MultipartBody) encode() (body []byte, contentType string, err error) {
	b := &bytes.Buffer{}
	w := multipart.NewWriter(b)
	for name, value := range self.Fields {
		if err = w.WriteField(name, value); err != nil {
			return
		}
	}
	for _, file := range self.Files {
		var part io.Writer
		part, err = w.CreateFormFile(file.FieldName, file.FileName)
		if err != nil {
			return
		}
		if _, err = part.Write(file.Content); err != nil {
			return
		}
	}
	if err = w.Close(); err != nil {
		return
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

// Reads are GET with query parameters.
// Writes carry a JSON body, or a `*MultipartBody`.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

func NewGetRequest(path string, query url.Values) *Request {
	return &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	}
}

func NewBodyRequest(method string, path string, body any) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Body:   body,
	}
}

func (self *Request) encodeBody() (body io.Reader, contentType string, err error) {
	switch v := self.Body.(type) {
	case nil:
		return nil, "", nil
	case *MultipartBody:
		var bodyBytes []byte
		bodyBytes, contentType, err = v.encode()
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(bodyBytes), contentType, nil
	default:
		var bodyBytes []byte
		bodyBytes, err = json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(bodyBytes), "application/json", nil
	}
}

// Call resolves expected failures (4xx/5xx) into a failed result.
// Only transport failures return an error.
func Call[R any](ctx context.Context, api *ModelApi, request *Request) (*FetchResult[R], error) {
	requestUrl := api.apiUrl + request.Path
	if 0 < len(request.Query) {
		requestUrl = fmt.Sprintf("%s?%s", requestUrl, request.Query.Encode())
	}
	transportError := func(statusCode int, err error) *TransportError {
		return &TransportError{
			Method:     request.Method,
			Url:        requestUrl,
			StatusCode: statusCode,
			Err:        err,
		}
	}

	body, contentType, err := request.encodeBody()
	if err != nil {
		return nil, transportError(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, request.Method, requestUrl, body)
	if err != nil {
		return nil, transportError(0, err)
	}
	for key, values := range api.clientContext.Header() {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	r, err := api.client.Do(req)
	if err != nil {
		return nil, transportError(0, err)
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, transportError(r.StatusCode, err)
	}

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		glog.V(1).Infof("[api]%s %s (%d)\n", request.Method, request.Path, r.StatusCode)
		return FailureResult[R](parseErrorData(r.StatusCode, responseBodyBytes)), nil
	}

	var result R
	if 0 < len(bytes.TrimSpace(responseBodyBytes)) {
		if err := json.Unmarshal(responseBodyBytes, &result); err != nil {
			return nil, transportError(r.StatusCode, err)
		}
	}
	return SuccessResult(result), nil
}

func parseErrorData(statusCode int, body []byte) *ErrorData {
	payload := &ErrorPayload{}
	if err := json.Unmarshal(body, payload); err == nil && (payload.Error.Code != 0 || payload.Error.Reason != "") {
		return NewPayloadErrorData(payload)
	}
	// the response body is the error message
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(statusCode)
	}
	return NewTextErrorData(text)
}

func IsTransportError(err error) bool {
	var transportError *TransportError
	return errors.As(err, &transportError)
}
