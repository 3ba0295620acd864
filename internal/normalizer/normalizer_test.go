package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/llm"
)

type fakeDigests struct {
	system, tools string
	ok            bool
}

func (f fakeDigests) Digests(string) (string, string, bool) {
	return f.system, f.tools, f.ok
}

func normalize(t *testing.T, req *llm.CompletionRequest, requestID, workerID string, digests DigestSource) (Result, error) {
	t.Helper()
	systemMessages, lastUser, err := ValidateRequest(req.Messages)
	if err != nil {
		return Result{}, err
	}
	return Normalize(req, requestID, workerID, systemMessages, lastUser, digests), nil
}

func TestValidateRequest_MissingUser(t *testing.T) {
	_, _, err := ValidateRequest([]llm.Message{{Role: llm.RoleSystem, Content: "be nice"}})
	assert.ErrorIs(t, err, brokererr.ErrMissingUser)
}

func TestValidateRequest_TrailingEmptyUserIsMissingUser(t *testing.T) {
	_, _, err := ValidateRequest([]llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleUser, Content: ""},
	})
	assert.ErrorIs(t, err, brokererr.ErrMissingUser)
}

func TestValidateRequest_KeepsLastUserByPositionNotLastNonEmpty(t *testing.T) {
	systemMessages, lastUser, err := ValidateRequest([]llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleUser, Content: "second"},
	})
	require.NoError(t, err)
	assert.Empty(t, systemMessages)
	assert.Equal(t, "second", lastUser.Content)
}

func TestNormalize_MissingUser(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "be nice"}},
	}

	_, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	assert.ErrorIs(t, err, brokererr.ErrMissingUser)
}

func TestNormalize_ProjectsHistory(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "first question"},
			{Role: llm.RoleAssistant, Content: "first answer"},
			{Role: llm.RoleUser, Content: "second question"},
		},
	}

	result, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	assert.Len(t, result.Frame.Messages, 2)
	assert.Equal(t, "be nice", result.Frame.Messages[0].Content)
	assert.Equal(t, "second question", result.Frame.Messages[1].Content)
}

func TestNormalize_InjectsFormatSentinelWhenNoSystemMessage(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}

	result, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	require.Len(t, result.Frame.Messages, 2)
	assert.Equal(t, llm.RoleSystem, result.Frame.Messages[0].Role)
	assert.Equal(t, FormatSentinel, result.Frame.Messages[0].Content)
}

func TestNormalize_ElidesSystemWhenDigestMatches(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	}

	firstPass, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)
	assert.False(t, firstPass.Frame.SystemElided)

	cached := fakeDigests{system: firstPass.SystemDigest, ok: true}
	secondPass, err := normalize(t, req, "req-2", "wkr-1", cached)
	require.NoError(t, err)
	assert.True(t, secondPass.Frame.SystemElided)
	assert.Len(t, secondPass.Frame.Messages, 1)
	assert.Equal(t, "hi", secondPass.Frame.Messages[0].Content)
}

func TestNormalize_ToolsAndSystemCachesAreIndependent(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "hi"},
		},
		Tools: []llm.ToolDef{{Name: "lookup", Description: "looks things up"}},
	}

	first, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	// Only the system digest is cached; tools digest is not.
	cached := fakeDigests{system: first.SystemDigest, ok: true}
	second, err := normalize(t, req, "req-2", "wkr-1", cached)
	require.NoError(t, err)

	assert.True(t, second.Frame.SystemElided)
	assert.False(t, second.Frame.ToolsElided)
	assert.NotEmpty(t, second.Frame.Tools)
}

func TestNormalize_NoToolsNeverElidesTools(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	}

	cached := fakeDigests{system: "whatever", tools: "whatever-tools", ok: true}
	result, err := normalize(t, req, "req-1", "wkr-1", cached)
	require.NoError(t, err)

	assert.False(t, result.Frame.ToolsElided)
	assert.Empty(t, result.Frame.Tools)
}

func TestNormalize_ToolsFingerprintCoversParameters(t *testing.T) {
	base := []llm.ToolDef{{
		Name:        "lookup",
		Description: "looks things up",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}},
	}}
	changedParams := []llm.ToolDef{{
		Name:        "lookup",
		Description: "looks things up",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "integer"}}},
	}}

	req := &llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools:    base,
	}
	first, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	req2 := &llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools:    changedParams,
	}
	cached := fakeDigests{system: first.SystemDigest, tools: first.ToolsDigest, ok: true}
	second, err := normalize(t, req2, "req-2", "wkr-1", cached)
	require.NoError(t, err)

	assert.NotEqual(t, first.ToolsDigest, second.ToolsDigest, "a parameters-only change must not fingerprint identically")
	assert.False(t, second.Frame.ToolsElided, "a changed parameters schema must never be elided")
}

func TestResult_Commit(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "hi"},
		},
		Tools: []llm.ToolDef{{Name: "lookup", Description: "looks things up"}},
	}

	result, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	var gotSystem, gotTools string
	err = result.Commit("wkr-1",
		func(_, digest string) error { gotSystem = digest; return nil },
		func(_, digest string) error { gotTools = digest; return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, result.SystemDigest, gotSystem)
	assert.Equal(t, result.ToolsDigest, gotTools)
}

func TestResult_Commit_SkipsElidedCaches(t *testing.T) {
	req := &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be nice"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	}

	first, err := normalize(t, req, "req-1", "wkr-1", fakeDigests{})
	require.NoError(t, err)

	cached := fakeDigests{system: first.SystemDigest, ok: true}
	second, err := normalize(t, req, "req-2", "wkr-1", cached)
	require.NoError(t, err)

	called := false
	err = second.Commit("wkr-1",
		func(_, _ string) error { called = true; return nil },
		func(_, _ string) error { called = true; return nil },
	)
	require.NoError(t, err)
	assert.False(t, called, "elided system digest must not be recommitted")
}
