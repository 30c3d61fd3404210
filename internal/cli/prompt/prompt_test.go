package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(fmt.Errorf("read: %w", promptui.ErrAbort)))
	assert.True(t, IsAborted(ErrAborted))
	assert.False(t, IsAborted(errors.New("boom")))
	assert.False(t, IsAborted(nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	assert.ErrorIs(t, wrapError(promptui.ErrInterrupt), ErrAborted)

	other := errors.New("tty closed")
	assert.Equal(t, other, wrapError(other))
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Close session ns=1;i=1?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}
