package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledPassthrough(t *testing.T) {
	Disable()
	assert.Equal(t, "hello", Success("hello"))
	assert.Equal(t, "hello", Error("hello"))
	assert.Equal(t, "id", SnapshotID("id"))
}

func TestEnabledWraps(t *testing.T) {
	state.disabled = false
	state.enabled = true
	defer Disable()

	assert.Equal(t, Green+"ok"+Reset, Success("ok"))
	assert.Equal(t, Red+"bad"+Reset, Errorf("%s", "bad"))
	assert.Equal(t, Bold+"h"+Reset, Header("h"))
}
