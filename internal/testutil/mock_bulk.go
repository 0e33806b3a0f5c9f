// Package testutil provides testing utilities for the bulk query client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// DefaultJobID is the job identifier the mock assigns on submission.
const DefaultJobID = "750xx000000001AAA"

// MockPage defines one result page served by the mock.
type MockPage struct {
	// Body is the raw CSV payload including the header row.
	Body string

	// Locator is the locator that selects this page; empty for the first
	// page. The next-page locator is derived from the following page.
	Locator string
}

// SubmitRequest is a captured job submission payload.
type SubmitRequest struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
}

// MockBulkAPI is a configurable mock bulk query API server for testing.
type MockBulkAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	jobID        string
	states       []string
	stateIdx     int
	errorMessage string
	pages        []MockPage

	// OmitFinalLocator switches the last page from the literal "null"
	// locator header to no header at all. Both mean end of results.
	OmitFinalLocator bool

	// GzipResults serves result pages gzip-encoded when the request accepts
	// it.
	GzipResults bool

	// Tracking
	RequestCount      int
	TokenCount        int
	SubmitCount       int
	StatusCount       int
	ResultsCount      int
	AbortCount        int
	Locators          []string
	MaxRecords        []string
	LastSubmit        SubmitRequest
	LastRequestHeader http.Header
}

// NewMockBulkAPI creates a mock server with a healthy default job: one
// submission, immediate JobComplete, a single one-page result set.
func NewMockBulkAPI() *MockBulkAPI {
	mock := &MockBulkAPI{
		handlers: make(map[string]http.HandlerFunc),
		jobID:    DefaultJobID,
		states:   []string{"JobComplete"},
		pages:    []MockPage{{Body: "Id\n001xx0000001\n"}},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))

	return mock
}

// URL returns the mock server URL.
func (m *MockBulkAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBulkAPI) Close() {
	m.server.Close()
}

// JobID returns the job identifier the mock assigns.
func (m *MockBulkAPI) JobID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobID
}

// SetStates scripts the sequence of states returned by successive status
// polls. The last state repeats once the script is exhausted.
func (m *MockBulkAPI) SetStates(states ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = states
	m.stateIdx = 0
}

// SetErrorMessage sets the errorMessage field reported with a Failed state.
func (m *MockBulkAPI) SetErrorMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMessage = msg
}

// SetPages scripts the result pages. Locator chaining is derived from page
// order: each page's response names the next page's locator, and the last
// page reports end of results.
func (m *MockBulkAPI) SetPages(pages ...MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// SetHandler installs a custom handler for "METHOD /path", overriding the
// default routing.
func (m *MockBulkAPI) SetHandler(methodAndPath string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[methodAndPath] = handler
}

// route dispatches requests to custom handlers or the default bulk API
// behavior.
func (m *MockBulkAPI) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	m.mu.RLock()
	handler, exists := m.handlers[key]
	m.mu.RUnlock()

	if exists {
		handler(w, r)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/services/oauth2/token":
		m.handleToken(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/jobs/query"):
		m.handleSubmit(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/results"):
		m.handleResults(w, r)
	case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/jobs/query/"):
		m.handleAbort(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/jobs/query/"):
		m.handleStatus(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `[{"errorCode":"NOT_FOUND","message":"no route for %s"}]`, r.URL.Path)
	}
}

func (m *MockBulkAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.TokenCount++
	count := m.TokenCount
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":"mock-token-%d","instance_url":%q,"token_type":"Bearer"}`,
		count, m.server.URL)
}

func (m *MockBulkAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var submitted SubmitRequest
	_ = json.NewDecoder(r.Body).Decode(&submitted)

	m.mu.Lock()
	m.SubmitCount++
	m.LastSubmit = submitted
	jobID := m.jobID
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":%q,"operation":%q,"state":"UploadComplete"}`, jobID, submitted.Operation)
}

func (m *MockBulkAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.StatusCount++
	state := m.states[len(m.states)-1]
	if m.stateIdx < len(m.states) {
		state = m.states[m.stateIdx]
		m.stateIdx++
	}
	jobID := m.jobID
	errMsg := m.errorMessage
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":%q,"state":%q,"errorMessage":%q}`, jobID, state, errMsg)
}

func (m *MockBulkAPI) handleResults(w http.ResponseWriter, r *http.Request) {
	locator := r.URL.Query().Get("locator")

	m.mu.Lock()
	m.ResultsCount++
	m.Locators = append(m.Locators, locator)
	m.MaxRecords = append(m.MaxRecords, r.URL.Query().Get("maxRecords"))
	pages := m.pages
	omitFinal := m.OmitFinalLocator
	gzipResults := m.GzipResults
	m.mu.Unlock()

	idx := -1
	for i, p := range pages {
		if p.Locator == locator {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `[{"errorCode":"INVALID_LOCATOR","message":"unknown locator %s"}]`, locator)
		return
	}

	if idx+1 < len(pages) {
		w.Header().Set("Sforce-Locator", pages[idx+1].Locator)
	} else if !omitFinal {
		w.Header().Set("Sforce-Locator", "null")
	}
	w.Header().Set("Content-Type", "text/csv")

	if gzipResults && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte(pages[idx].Body))
		zw.Close()
		return
	}

	w.Write([]byte(pages[idx].Body))
}

func (m *MockBulkAPI) handleAbort(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.AbortCount++
	jobID := m.jobID
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"id":%q,"state":"Aborted"}`, jobID)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBulkAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetResultsCount returns the number of results requests observed.
func (m *MockBulkAPI) GetResultsCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ResultsCount
}

// GetStatusCount returns the number of status polls observed.
func (m *MockBulkAPI) GetStatusCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StatusCount
}

// GetLocators returns the locator query parameters observed on results
// requests, in order.
func (m *MockBulkAPI) GetLocators() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Locators...)
}
