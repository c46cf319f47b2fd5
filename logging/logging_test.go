package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	log.Info().Msg("test message")
	assert.Contains(t, buf.String(), "test message")
}

func TestParseLevel(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNewHonorsLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New("warn").GetLevel())
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	log := FromContext(ctx)
	log.Info().Msg("test")
	assert.NotZero(t, buf.Len())

	log = FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{"profile": "home"})
	log.Info().Msg("opened")
	assert.Contains(t, buf.String(), `"profile":"home"`)
}
