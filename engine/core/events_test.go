package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var got []uint32
	first := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, data.U32[0])
		return data.U32[0] == 0
	}
	second := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		got = append(got, data.U32[0]+100)
		return true
	}

	assert.True(t, bus.Register(EVENT_CODE_RESIZED, "a", first))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, "a", first))
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, "b", second))

	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{U32: [4]uint32{0}}))
	assert.Equal(t, []uint32{0}, got, "a handled event stops propagation")

	got = nil
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{U32: [4]uint32{7}}))
	assert.Equal(t, []uint32{7, 107}, got)

	assert.True(t, bus.Unregister(EVENT_CODE_RESIZED, "b"))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, "b"))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}
