package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), u)
	}
	assert.False(t, IsValid("knots"))
	assert.False(t, IsValid(""))
}

func TestConvertSpeed(t *testing.T) {
	assert.InDelta(t, 36.0, ConvertSpeed(36, KMH), 1e-9)
	assert.InDelta(t, 10.0, ConvertSpeed(36, MPS), 1e-9)
	assert.InDelta(t, 22.369, ConvertSpeed(36, MPH), 1e-3)

	// Unknown units pass through.
	assert.InDelta(t, 36.0, ConvertSpeed(36, "furlongs"), 1e-9)
}
