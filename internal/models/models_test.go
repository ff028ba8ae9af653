package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeJSONKeepsTwoFieldMinimum(t *testing.T) {
	data, err := json.Marshal(Rejected("No faces were detected in the image"))
	require.NoError(t, err)

	assert.JSONEq(t, `{"status":"failed","message":"No faces were detected in the image"}`, string(data))
}

func TestOutcomeWithMatch(t *testing.T) {
	data, err := json.Marshal(Success("Detected face matches id 7").WithMatch(7, 0.05))
	require.NoError(t, err)

	assert.JSONEq(t, `{"status":"success","message":"Detected face matches id 7","match_id":7,"distance":0.05}`, string(data))
}

func TestOutcomeWithCodeDoesNotShareState(t *testing.T) {
	base := Failed("inference failed")
	withCode := base.WithCode(-3)

	assert.Nil(t, base.Code)
	require.NotNil(t, withCode.Code)
	assert.Equal(t, -3, *withCode.Code)
	assert.Equal(t, KindFailed, withCode.Kind)
	assert.False(t, withCode.IsSuccess())
}

func TestPersonFromCache(t *testing.T) {
	person := Person{
		ID:        3,
		Name:      "Bob",
		Birthdate: time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC),
		Title:     "Engineer",
	}

	fields := map[string]string{}
	for k, v := range person.CacheFields() {
		fields[k] = fmt.Sprint(v)
	}

	got, err := PersonFromCache(fields)
	require.NoError(t, err)
	assert.Equal(t, person, *got)
}

func TestPersonFromCacheWithoutBirthdate(t *testing.T) {
	got, err := PersonFromCache(map[string]string{"id": "4", "name": "Eve", "birthdate": ""})

	require.NoError(t, err)
	assert.True(t, got.Birthdate.IsZero())
}

func TestPersonFromCacheRejectsBadData(t *testing.T) {
	_, err := PersonFromCache(map[string]string{"id": "x"})
	assert.Error(t, err)

	_, err = PersonFromCache(map[string]string{"id": "1", "birthdate": "yesterday"})
	assert.Error(t, err)
}
