package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videogen/internal/kv"
	"github.com/maauso/videogen/internal/provider"
)

func TestModelOrder_DefaultsToCatalogue(t *testing.T) {
	p := New(kv.NewMemoryStore(), provider.DefaultRegistry())

	order, err := p.ModelOrder(provider.Veo3)
	require.NoError(t, err)
	assert.Equal(t, provider.NewVeo3Adapter().Models(), order)
}

func TestModelOrder_Stored(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set("veo3_model_order", `["veo3-pro","bogus","veo3-pro","veo3"]`))
	p := New(store, provider.DefaultRegistry())

	order, err := p.ModelOrder(provider.Veo3)
	require.NoError(t, err)
	assert.Equal(t, []string{"veo3-pro", "veo3", "veo3-fast-frames", "veo3-fast", "veo3-pro-frames", "veo3-frames"}, order)
}

func TestModelOrder_Unparsable(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set("sora2_model_order", "nope"))
	p := New(store, provider.DefaultRegistry())

	order, err := p.ModelOrder(provider.Sora2)
	require.NoError(t, err)
	assert.Equal(t, []string{"sora-2", "sora-2-pro"}, order)
}

func TestPromote(t *testing.T) {
	store := kv.NewMemoryStore()
	p := New(store, provider.DefaultRegistry())

	order, err := p.Promote(provider.Sora2, provider.Sora2ModelPro)
	require.NoError(t, err)
	assert.Equal(t, []string{"sora-2-pro", "sora-2"}, order)

	raw, ok := store.Get("sora2_model_order")
	require.True(t, ok)
	assert.JSONEq(t, `["sora-2-pro","sora-2"]`, raw)

	_, err = p.Promote(provider.Sora2, "veo3")
	assert.Error(t, err)

	_, err = p.ModelOrder("kling")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestPreferred(t *testing.T) {
	store := kv.NewMemoryStore()
	p := New(store, provider.DefaultRegistry())

	_, ok, err := p.Preferred(provider.Veo3)
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored keeps the adapter default")

	require.NoError(t, store.Set("veo3_model_order", "nope"))
	_, ok, err = p.Preferred(provider.Veo3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("veo3_model_order", `["bogus"]`))
	_, ok, err = p.Preferred(provider.Veo3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Promote(provider.Veo3, provider.Veo3ModelPro)
	require.NoError(t, err)
	model, ok, err := p.Preferred(provider.Veo3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, provider.Veo3ModelPro, model)

	_, _, err = p.Preferred("kling")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}
