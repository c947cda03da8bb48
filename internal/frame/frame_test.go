// SPDX-License-Identifier: MIT

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDimensions(t *testing.T) {
	f := New(8, 4)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 4, f.Height)
	assert.Equal(t, 8*BytesPerPixel, f.Stride)
	assert.Len(t, f.Data, 8*4*BytesPerPixel)
}

func TestSetAt(t *testing.T) {
	f := New(4, 4)
	f.Set(2, 3, 10, 20, 30)

	r, g, b := f.At(2, 3)
	assert.Equal(t, byte(10), r)
	assert.Equal(t, byte(20), g)
	assert.Equal(t, byte(30), b)

	r, g, b = f.At(0, 0)
	assert.Equal(t, byte(0), r+g+b)
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(2, 2)
	f.Set(0, 0, 1, 2, 3)

	c := f.Clone()
	require.Equal(t, f.Data, c.Data)

	c.Set(0, 0, 9, 9, 9)
	r, _, _ := f.At(0, 0)
	assert.Equal(t, byte(1), r, "clone writes must not alias the original")
}
