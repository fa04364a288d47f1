package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
}

func TestSetLevel(t *testing.T) {
	a := NewLogger("info")
	b := NewLogger("error")
	SetLevel("warn")
	assert.Equal(t, logrus.WarnLevel, a.GetLevel())
	assert.Equal(t, logrus.WarnLevel, b.GetLevel())
	SetLevel("info")
}
