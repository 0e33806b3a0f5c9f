package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sfdctools/bulkquery/internal/testutil"
	"github.com/sfdctools/bulkquery/pkg/auth"
)

func TestBuildAuth_StaticToken(t *testing.T) {
	opts := &options{token: "pre-issued", instanceURL: "https://myorg.example.com"}

	provider, baseURL, err := buildAuth(context.Background(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildAuth failed: %v", err)
	}

	if _, ok := provider.(auth.StaticProvider); !ok {
		t.Errorf("provider = %T, want auth.StaticProvider", provider)
	}
	if baseURL != "https://myorg.example.com" {
		t.Errorf("baseURL = %q", baseURL)
	}
}

func TestBuildAuth_TokenRequiresInstanceURL(t *testing.T) {
	opts := &options{token: "pre-issued"}

	_, _, err := buildAuth(context.Background(), opts, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for --token without --instance-url")
	}
}

func TestBuildAuth_PasswordFlow(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()

	opts := &options{
		loginURL:     mock.URL(),
		clientID:     "cli-client",
		clientSecret: "cli-secret",
		username:     "cli@example.com",
		password:     "hunter2",
	}

	provider, baseURL, err := buildAuth(context.Background(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildAuth failed: %v", err)
	}

	if provider == nil {
		t.Fatal("Expected a provider")
	}
	if baseURL != mock.URL() {
		t.Errorf("baseURL = %q, want instance URL from login", baseURL)
	}
	if mock.TokenCount != 1 {
		t.Errorf("logins = %d, want 1 (up-front login)", mock.TokenCount)
	}
}

func TestRunExport_WritesFile(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()

	mock.SetStates("InProgress", "JobComplete")
	mock.SetPages(
		testutil.MockPage{Body: "Id\n001xx01\n"},
		testutil.MockPage{Body: "Id\n001xx02\n", Locator: "page-2"},
	)

	output := filepath.Join(t.TempDir(), "out.csv")
	opts := &options{
		loginURL:     mock.URL(),
		clientID:     "cli-client",
		clientSecret: "cli-secret",
		username:     "cli@example.com",
		password:     "hunter2",
		apiVersion:   "v62.0",
		query:        "SELECT Id FROM Account",
		output:       output,
		pollInterval: 5 * time.Millisecond,
		logLevel:     "error",
	}

	if err := runExport(context.Background(), opts); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "Id\n001xx01\n001xx02\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunExport_JobFailurePropagates(t *testing.T) {
	mock := testutil.NewMockBulkAPI()
	defer mock.Close()

	mock.SetStates("Failed")
	mock.SetErrorMessage("query not supported")

	opts := &options{
		loginURL:     mock.URL(),
		clientID:     "cli-client",
		clientSecret: "cli-secret",
		username:     "cli@example.com",
		password:     "hunter2",
		apiVersion:   "v62.0",
		query:        "SELECT Id FROM Unsupported",
		output:       filepath.Join(t.TempDir(), "out.csv"),
		pollInterval: 5 * time.Millisecond,
		logLevel:     "error",
	}

	if err := runExport(context.Background(), opts); err == nil {
		t.Fatal("Expected job failure to propagate")
	}
}

func TestRootCmd_RequiresQuery(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err == nil {
		t.Error("Expected error when --query is missing")
	}
}
