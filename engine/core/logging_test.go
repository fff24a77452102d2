package core

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogKeepsPercentInMessages(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)

	err := errors.New("fragment: type %12: width 16")
	LogError("%s", err)
	LogWarn("glslc: %s", "default.glsl:3: error: '%' : syntax error")

	out := buf.String()
	assert.Contains(t, out, "type %12: width 16")
	assert.Contains(t, out, "'%' : syntax error")
	assert.NotContains(t, out, "MISSING")
}
