package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/studyspace/core/internal/config"
)

func providersFixture() appcfg.AIConfig {
	return appcfg.AIConfig{
		Providers: []appcfg.AIProvider{
			{ID: "disabled", Type: "openai", DefaultModel: "m0", Enabled: false},
			{ID: "first", Type: "openai", DefaultModel: "m1", Enabled: true},
			{ID: "second", Type: "anthropic", DefaultModel: "m2", Enabled: true},
		},
	}
}

func TestSelectProviderAssigned(t *testing.T) {
	cfg := providersFixture()
	p := SelectProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "second"})
	require.NotNil(t, p)
	assert.Equal(t, "second", p.ID)
	assert.Equal(t, "m2", p.DefaultModel)
}

func TestSelectProviderModelOverride(t *testing.T) {
	cfg := providersFixture()
	p := SelectProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "second", Model: "custom"})
	require.NotNil(t, p)
	assert.Equal(t, "custom", p.DefaultModel)

	// The config itself stays untouched.
	assert.Equal(t, "m2", cfg.Providers[2].DefaultModel)
}

func TestSelectProviderFallsBackToFirstEnabled(t *testing.T) {
	cfg := providersFixture()

	// Unknown or disabled assignment falls through to the first enabled.
	p := SelectProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "disabled"})
	require.NotNil(t, p)
	assert.Equal(t, "first", p.ID)

	p = SelectProvider(cfg, nil)
	require.NotNil(t, p)
	assert.Equal(t, "first", p.ID)
}

func TestSelectProviderNoneEnabled(t *testing.T) {
	cfg := appcfg.AIConfig{Providers: []appcfg.AIProvider{{ID: "x", Enabled: false}}}
	assert.Nil(t, SelectProvider(cfg, nil))
}

func TestNormalizeOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "", normalizeOpenAIBaseURL(""))
	assert.Equal(t, "https://api.openai.com/v1", normalizeOpenAIBaseURL("https://api.openai.com"))
	assert.Equal(t, "https://api.openai.com/v1", normalizeOpenAIBaseURL("https://api.openai.com/v1/"))
	assert.Equal(t, "https://llm.local/proxy/v1", normalizeOpenAIBaseURL("https://llm.local/proxy"))
}

func TestNormalizeOpenAICompatibleEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
	assert.Equal(t, "http://localhost:11434", normalizeOpenAICompatibleEndpoint("http://localhost:11434/v1"))
	assert.Equal(t, "http://localhost:11434", normalizeOpenAICompatibleEndpoint("http://localhost:11434/"))
}

func TestIsOpenAICompatibleProviderType(t *testing.T) {
	assert.True(t, isOpenAICompatibleProviderType("openai-compatible"))
	assert.True(t, isOpenAICompatibleProviderType("OpenAI_Compatible"))
	assert.False(t, isOpenAICompatibleProviderType("openai"))
	assert.False(t, isOpenAICompatibleProviderType("anthropic"))
}

func TestUnmarshalModelJSON(t *testing.T) {
	type payload struct {
		Points []string `json:"points"`
	}

	var p payload
	require.NoError(t, UnmarshalModelJSON(`{"points":["a"]}`, &p))
	assert.Equal(t, []string{"a"}, p.Points)

	p = payload{}
	require.NoError(t, UnmarshalModelJSON("```json\n{\"points\":[\"b\"]}\n```", &p))
	assert.Equal(t, []string{"b"}, p.Points)

	p = payload{}
	require.NoError(t, UnmarshalModelJSON(`Ось результат: {"points":["c"]} сподіваюсь допоміг`, &p))
	assert.Equal(t, []string{"c"}, p.Points)

	var list []int
	require.NoError(t, UnmarshalModelJSON("The list is [1,2,3].", &list))
	assert.Equal(t, []int{1, 2, 3}, list)

	assert.Error(t, UnmarshalModelJSON("no json here", &p))
}
