package logging

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStacktrace(t *testing.T) {
	err := errors.New("boom")
	entry := WithStacktrace(logrus.NewEntry(logrus.New()), err)
	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	assert.NotNil(t, entry.Data[Stacktrace])
}

func TestWithStacktrace_NoStack(t *testing.T) {
	err := fmt.Errorf("plain")
	entry := WithStacktrace(logrus.NewEntry(logrus.New()), err)
	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	_, ok := entry.Data[Stacktrace]
	assert.False(t, ok)
}

func TestExtractStack_Wrapped(t *testing.T) {
	inner := errors.New("inner")
	wrapped := fmt.Errorf("outer: %w", inner)
	assert.NotNil(t, ExtractStack(wrapped))
	assert.NotNil(t, ExtractStack(errors.WithMessage(inner, "more")))
	assert.Nil(t, ExtractStack(fmt.Errorf("no stack")))
}

func TestApply(t *testing.T) {
	previous := logrus.GetLevel()
	defer logrus.SetLevel(previous)

	require.NoError(t, Apply(Config{Level: "debug", Format: "text"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	assert.Error(t, Apply(Config{Level: "loud"}))
	assert.Error(t, Apply(Config{Format: "xml"}))
}
