package filters

import (
	"errors"
	"testing"

	"part-identifier/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedReleasesBufferOnFailure(t *testing.T) {
	dst := newGray(t, 8, 8, 0)
	cause := errors.New("opencv: bad argument")

	out, err := checked(dst, "median blur", cause)
	assert.Nil(t, out)
	require.ErrorIs(t, err, processing.ErrInvalidImage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "median blur")
	assert.False(t, dst.IsValid(), "destination must be closed")
}

func TestCheckedReturnsBufferOnSuccess(t *testing.T) {
	dst := newGray(t, 8, 8, 0)

	out, err := checked(dst, "median blur", nil)
	require.NoError(t, err)
	assert.Same(t, dst, out)
	assert.True(t, out.IsValid())
}
