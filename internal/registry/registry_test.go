package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

func TestRegistry_GetAbsent(t *testing.T) {
	r := New()
	m, ok := r.Get(model.Key("missing"))
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestRegistry_PutOverwrites(t *testing.T) {
	r := New()
	e := model.Key("e1")
	first := model.NewRow("notes", model.Plain, field.F("v", field.Int(1)))
	second := model.NewRow("notes", model.Plain, field.F("v", field.Int(2)))

	r.Put(e, first)
	r.Put(e, second)

	got, ok := r.Get(e)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Clear(t *testing.T) {
	r := New()
	r.Put(model.Key("a"), model.NewRow("t", model.Plain))
	r.Put(model.Key("b"), model.NewRow("t", model.Plain))

	r.Clear()

	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(model.Key("a"))
	assert.False(t, ok)
}
