package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snotify/pkg/channel"
)

func names(ncs []NamedChannel) []string {
	out := make([]string, 0, len(ncs))
	for _, nc := range ncs {
		out = append(out, nc.Name)
	}
	return out
}

func TestAddChannelDefaultsToDeclaredName(t *testing.T) {
	d := New()
	require.NoError(t, d.AddChannel(newFake("telegram"), ""))
	require.NoError(t, d.AddChannel(newFake("email"), "mail"))

	assert.Equal(t, []string{"telegram", "mail"}, names(d.ListChannels()))
	ch, err := d.GetChannel("mail")
	require.NoError(t, err)
	assert.Equal(t, "email", ch.Name())
}

func TestAddChannelRejectsInvalidConfig(t *testing.T) {
	d := New()
	bad := newFake("email")
	bad.validateErr = channel.Configf("email", "Host is required")

	err := d.AddChannel(bad, "")
	assert.Same(t, bad.validateErr, err)
	assert.ErrorIs(t, err, channel.ErrConfig)
	assert.Empty(t, d.ListChannels())

	assert.ErrorIs(t, d.AddChannel(nil, "x"), channel.ErrConfig)
	assert.ErrorIs(t, d.AddChannel(newFake(""), ""), channel.ErrConfig)
}

func TestAddChannelReplacesInPlace(t *testing.T) {
	d := New()
	a1, b, a2 := newFake("a"), newFake("b"), newFake("a")
	require.NoError(t, d.AddChannel(a1, ""))
	require.NoError(t, d.AddChannel(b, ""))
	require.NoError(t, d.AddChannel(a2, ""))

	list := d.ListChannels()
	assert.Equal(t, []string{"a", "b"}, names(list))
	assert.Same(t, a2, list[0].Channel)
}

func TestGetAndRemoveUnknown(t *testing.T) {
	d := New()
	_, err := d.GetChannel("nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)
	assert.True(t, errors.Is(d.RemoveChannel("nope"), ErrNotFound))
}

func TestRemoveChannelKeepsOrder(t *testing.T) {
	d := New()
	for _, n := range []string{"a", "b", "c", "d"} {
		require.NoError(t, d.AddChannel(newFake(n), ""))
	}
	require.NoError(t, d.RemoveChannel("b"))
	assert.Equal(t, []string{"a", "c", "d"}, names(d.ListChannels()))

	// index is rebuilt after removal
	require.NoError(t, d.AddChannel(newFake("c"), ""))
	assert.Equal(t, []string{"a", "c", "d"}, names(d.ListChannels()))
	_, err := d.GetChannel("d")
	assert.NoError(t, err)
}

func TestListChannelsReturnsCopy(t *testing.T) {
	d := New()
	require.NoError(t, d.AddChannel(newFake("a"), ""))
	list := d.ListChannels()
	list[0].Name = "mutated"
	assert.Equal(t, []string{"a"}, names(d.ListChannels()))
}

func TestFallbackOrderAccessors(t *testing.T) {
	d := New()
	assert.Nil(t, d.FallbackOrder())

	in := []string{"x", "y", "x"}
	d.SetFallbackOrder(in)
	in[0] = "changed"
	got := d.FallbackOrder()
	assert.Equal(t, []string{"x", "y", "x"}, got)
	got[1] = "changed"
	assert.Equal(t, []string{"x", "y", "x"}, d.FallbackOrder())

	d.SetFallbackOrder([]string{})
	assert.Nil(t, d.FallbackOrder())

	d.SetFallbackOrder([]string{"x"})
	d.ClearFallbackOrder()
	assert.Nil(t, d.FallbackOrder())
}
