package ctx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestAddErrorChainsNewestFirst(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	lv := &ContextLogValues{}
	lv.AddError(nil)
	assert.Nil(t, lv.Error)

	lv.AddError(first)
	lv.AddError(second)
	assert.ErrorIs(t, lv.Error, first)
	assert.ErrorIs(t, lv.Error, second)
	assert.Equal(t, "second: first", lv.Error.Error())
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, (&ContextLogValues{StatusCode: 200}).Level())
	assert.Equal(t, zapcore.WarnLevel, (&ContextLogValues{StatusCode: 429}).Level())
	assert.Equal(t, zapcore.ErrorLevel, (&ContextLogValues{StatusCode: 500}).Level())
	assert.Equal(t, zapcore.ErrorLevel, (&ContextLogValues{StatusCode: 200, LogLevel: "ERROR"}).Level())
}

func TestMarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	lv := &ContextLogValues{
		RequestID:  "req_abc",
		CallerID:   "42",
		Intent:     "financial_query",
		Generated:  true,
		StatusCode: 200,
		Path:       "/analyze",
		Error:      errors.New("boom"),
	}
	assert.NoError(t, lv.MarshalLogObject(enc))
	assert.Equal(t, "req_abc", enc.Fields["request_id"])
	assert.Equal(t, "42", enc.Fields["caller_id"])
	assert.Equal(t, "financial_query", enc.Fields["intent"])
	assert.Equal(t, true, enc.Fields["generated"])
	assert.Equal(t, "boom", enc.Fields["error"])

	anon := zapcore.NewMapObjectEncoder()
	assert.NoError(t, (&ContextLogValues{}).MarshalLogObject(anon))
	assert.NotContains(t, anon.Fields, "caller_id")
	assert.NotContains(t, anon.Fields, "intent")
}
