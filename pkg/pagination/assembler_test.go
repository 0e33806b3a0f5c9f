package pagination

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sfdctools/bulkquery/internal/testutil"
)

func TestAssemble_ThreePages(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n001xx02\n"},
		testutil.MockPage{Body: "Id\n001xx03\n001xx04\n", Locator: "page-2"},
		testutil.MockPage{Body: "Id\n001xx05\n001xx06\n", Locator: "page-3"},
	)

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read assembled stream: %v", err)
	}

	// Exactly one header line, from the first page, then all data rows in
	// fetch order.
	want := "Id\n001xx01\n001xx02\n001xx03\n001xx04\n001xx05\n001xx06\n"
	if string(got) != want {
		t.Errorf("assembled = %q, want %q", got, want)
	}

	// Each non-null locator triggered exactly one more fetch, in order.
	locators := mock.GetLocators()
	wantLocators := []string{"", "page-2", "page-3"}
	if len(locators) != len(wantLocators) {
		t.Fatalf("locators = %v, want %v", locators, wantLocators)
	}
	for i := range wantLocators {
		if locators[i] != wantLocators[i] {
			t.Errorf("locator[%d] = %q, want %q", i, locators[i], wantLocators[i])
		}
	}
}

func TestAssemble_SinglePage(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.SetPages(testutil.MockPage{Body: "Id,Name\n001,Acme\n"})

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read assembled stream: %v", err)
	}
	if string(got) != "Id,Name\n001,Acme\n" {
		t.Errorf("assembled = %q", got)
	}
	if mock.GetResultsCount() != 1 {
		t.Errorf("ResultsCount = %d, want 1", mock.GetResultsCount())
	}
}

func TestAssemble_HeaderOnlyPageContributesNothing(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n"},
		testutil.MockPage{Body: "Id\n", Locator: "empty-page"},
		testutil.MockPage{Body: "Id\n001xx02\n", Locator: "page-3"},
	)

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read assembled stream: %v", err)
	}
	if string(got) != "Id\n001xx01\n001xx02\n" {
		t.Errorf("assembled = %q", got)
	}
}

func TestAssemble_OmittedFinalLocator(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.OmitFinalLocator = true
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n"},
		testutil.MockPage{Body: "Id\n001xx02\n", Locator: "page-2"},
	)

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read assembled stream: %v", err)
	}
	if string(got) != "Id\n001xx01\n001xx02\n" {
		t.Errorf("assembled = %q", got)
	}
}

func TestAssemble_FetchErrorMidStream(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n"},
		testutil.MockPage{Body: "Id\n001xx02\n", Locator: "page-2"},
	)

	// The second page's fetch fails server-side.
	mock.SetHandler("GET /services/data/v62.0/jobs/query/"+testutil.DefaultJobID+"/results",
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("locator") == "page-2" {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`[{"errorCode":"UNKNOWN_EXCEPTION","message":"boom"}]`))
				return
			}
			w.Header().Set("Sforce-Locator", "page-2")
			w.Write([]byte("Id\n001xx01\n"))
		})

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	got, err := io.ReadAll(r)

	// Page 1 arrives intact, then the failure surfaces from Read.
	if !strings.HasPrefix(string(got), "Id\n001xx01\n") {
		t.Errorf("partial output = %q, want page 1 prefix", got)
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError from Read, got %v", err)
	}
}

func TestAssemble_Backpressure(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	page1 := "Id\n001xx01\n001xx02\n"
	mock.SetPages(
		testutil.MockPage{Body: page1},
		testutil.MockPage{Body: "Id\n001xx03\n", Locator: "page-2"},
	)

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})
	defer r.Close()

	// Read less than page 1: the writer is still blocked appending it, so
	// page 2 must not have been requested yet.
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("partial read: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if mock.GetResultsCount() != 1 {
		t.Errorf("ResultsCount = %d before draining page 1, want 1", mock.GetResultsCount())
	}

	// Draining the stream releases the loop to fetch page 2.
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := string(buf) + string(rest); got != page1+"001xx03\n" {
		t.Errorf("assembled = %q", got)
	}
	if mock.GetResultsCount() != 2 {
		t.Errorf("ResultsCount = %d after drain, want 2", mock.GetResultsCount())
	}
}

func TestAssemble_ConsumerCloseAbortsFetching(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n001xx02\n"},
		testutil.MockPage{Body: "Id\n001xx03\n", Locator: "page-2"},
		testutil.MockPage{Body: "Id\n001xx04\n", Locator: "page-3"},
	)

	a := NewAssembler(NewFetcher(newTestClient(t, mock.URL())))

	r := a.Assemble(context.Background(), testutil.DefaultJobID, AssembleOptions{})

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("partial read: %v", err)
	}
	r.Close()

	// The aborted writer stops walking the locator chain.
	time.Sleep(50 * time.Millisecond)
	count := mock.GetResultsCount()
	time.Sleep(50 * time.Millisecond)
	if mock.GetResultsCount() != count {
		t.Errorf("fetching continued after Close: %d -> %d", count, mock.GetResultsCount())
	}
	if mock.GetResultsCount() > 1 {
		t.Errorf("ResultsCount = %d after early close, want 1", mock.GetResultsCount())
	}
}
