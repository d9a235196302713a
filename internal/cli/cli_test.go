package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/service"
)

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()

	for _, name := range []string{"generate", "images", "retry", "status", "cancel", "plan"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"config", "verbose", "format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}

	generate, _, err := root.Find([]string{"generate"})
	require.NoError(t, err)
	for _, flag := range []string{"skip-images", "force", "resume", "region", "theme"} {
		assert.NotNil(t, generate.Flags().Lookup(flag), flag)
	}
	assert.Equal(t, "f", generate.Flags().Lookup("force").Shorthand)

	cancel, _, err := root.Find([]string{"cancel"})
	require.NoError(t, err)
	assert.NotNil(t, cancel.Flags().Lookup("purge"))
}

func TestRootCommandRejectsUnknownFormat(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--format", "yaml", "plan"})

	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestExitError(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	cause := errors.New("disk full")
	err := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "failed to save", cause))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "outer: failed to save: disk full", err.Error())
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}

func TestRunErrorCodes(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"interrupted", context.Canceled, ExitFailure, "interrupted"},
		{"in progress", service.ErrRunInProgress, ExitCommandError, "already in progress"},
		{"nothing to resume", service.ErrNothingToResume, ExitCommandError, "nothing to do"},
		{"no identity", service.ErrNoIdentity, ExitCommandError, "nothing to do"},
		{"bad transition", &domain.InvalidTransitionError{From: domain.StatusIdle, To: domain.StatusComplete}, ExitCommandError, "not in a state"},
		{"other", errors.New("boom"), ExitFailure, "generation failed"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := runError(tc.err)
			assert.Equal(t, tc.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tc.msg)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func samplePlan() *service.PlanReport {
	return &service.PlanReport{
		ContentByKind: map[domain.ContentKind]int{
			domain.ContentKindPage:    2,
			domain.ContentKindService: 3,
			domain.ContentKindNews:    1,
		},
		ContentCount:      6,
		ImageCount:        4,
		EstimatedUnique:   3,
		ContentCostMin:    0.048,
		ContentCostMax:    0.072,
		ImageCostMin:      0.024,
		ImageCostMax:      0.036,
		EstimatedDuration: 33 * time.Second,
		Problems:          []string{`template c: dependency "nowhere" not found`},
	}
}

func TestWritePlan(t *testing.T) {
	var buf bytes.Buffer
	WritePlan(&buf, samplePlan())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "plan", buf.Bytes())
}

func TestOutputFormatterJSON(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out}

	require.NoError(t, f.Print(samplePlan(), func(io.Writer) { t.Fatal("text writer called for json") }))

	var resp struct {
		Status string             `json:"status"`
		Data   service.PlanReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, resp.Data.ContentCount)
	assert.Equal(t, 3, resp.Data.ContentByKind[domain.ContentKindService])
}

func TestOutputFormatterObserver(t *testing.T) {
	var out, errOut bytes.Buffer
	quiet := &OutputFormatter{Format: "text", Writer: &out}
	assert.Nil(t, quiet.Observer())

	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	observer := f.Observer()
	require.NotNil(t, observer)

	require.NoError(t, observer(domain.GenerationProgress{Phase: domain.PhaseContent, Step: 2, Total: 5, CurrentItem: "about", Success: true}))
	require.NoError(t, observer(domain.GenerationProgress{Phase: domain.PhaseImages, Step: 1, Total: 1, CurrentItem: "abc"}))

	assert.Empty(t, out.String())
	assert.Equal(t, "[content] 2/5 about ok\n[images] 1/1 abc FAILED\n", errOut.String())
}

func TestKindLabel(t *testing.T) {
	assert.Equal(t, "Services Page", kindLabel(domain.ContentKindService))
	assert.Equal(t, "Directories Page", kindLabel(domain.ContentKindDirectory))
	assert.Equal(t, "Page", kindLabel(domain.ContentKindPage))
}

func TestWriteCancel(t *testing.T) {
	var buf bytes.Buffer
	WriteCancel(&buf, cancelOutput{Cancelled: true})
	assert.Equal(t, "Generation progress cleared.\n", buf.String())

	buf.Reset()
	WriteCancel(&buf, cancelOutput{Cancelled: true, Purged: &service.CleanupReport{
		ContentDeleted: 12,
		MediaDeleted:   7,
		FilesDeleted:   6,
		FilesFailed:    1,
	}})
	assert.Equal(t, "Generation progress cleared.\n"+
		"Deleted 12 content items, 7 media records and 6 stored images.\n"+
		"1 stored images could not be deleted; see the log.\n", buf.String())
}
