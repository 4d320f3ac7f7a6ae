package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAnyFold(t *testing.T) {
	assert.True(t, HasAnyFold("Thunderstorm", "thunder", "storm"))
	assert.True(t, HasAnyFold("light RAIN showers", "rain"))
	assert.False(t, HasAnyFold("Clear", "rain", "snow"))
	assert.False(t, HasAnyFold("", "rain"))
	assert.False(t, HasAnyFold("anything"))
}
