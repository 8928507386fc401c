package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRegistryRegisterResolveUnregister(t *testing.T) {
	r := newHandleRegistry(2)

	c := &Client{}
	ctx := newEngineContext()

	idx, err := r.register(c, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.len())
	assert.Same(t, c, r.resolve(ctx))

	r.unregister(idx)
	assert.Equal(t, 0, r.len())
	assert.Nil(t, r.resolve(ctx))
}

func TestHandleRegistryFullReturnsCreateFail(t *testing.T) {
	r := newHandleRegistry(1)

	_, err := r.register(&Client{}, newEngineContext())
	require.NoError(t, err)

	_, err = r.register(&Client{}, newEngineContext())
	assert.ErrorIs(t, err, ErrCreateFail)
}

func TestHandleRegistryResolveUnknownReturnsNil(t *testing.T) {
	r := newHandleRegistry(1)
	assert.Nil(t, r.resolve(newEngineContext()))
}

func TestHandleRegistrySlotsAreReusedAfterUnregister(t *testing.T) {
	r := newHandleRegistry(1)

	ctx1 := newEngineContext()
	idx1, err := r.register(&Client{}, ctx1)
	require.NoError(t, err)
	r.unregister(idx1)

	ctx2 := newEngineContext()
	idx2, err := r.register(&Client{}, ctx2)
	require.NoError(t, err)
	assert.Equal(t, idx1, idx2)
	assert.Nil(t, r.resolve(ctx1))
	assert.NotNil(t, r.resolve(ctx2))
}
