package tnc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramePrefixEmptyFormatDisablesPrefix(t *testing.T) {
	assert.Equal(t, "", framePrefix(""))
}

func TestFramePrefixFormatsNonEmptyPattern(t *testing.T) {
	assert.NotEmpty(t, framePrefix("%Y-%m-%d"))
}
