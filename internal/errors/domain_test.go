package errors

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMalformedInputError(t *testing.T) {
	err := &MalformedInputError{
		Source: "data/sample_summary.csv",
		Rows: []RowIssue{
			{Line: 3, Reason: "missing both applied_t1 and applied_t"},
			{Line: 7, Reason: "missing one applied value with no delta to derive it"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "data/sample_summary.csv")
	assert.Contains(t, msg, "line 3")
	assert.Contains(t, msg, "line 7", "every offending row appears in the aggregate message")

	var target *MalformedInputError
	require.ErrorAs(t, fmt.Errorf("load source: %w", err), &target)
	assert.Len(t, target.Rows, 2)
}

func TestInvalidParameterError(t *testing.T) {
	err := NewInvalidParameter("top_n", -1, "must be positive")
	assert.Equal(t, "invalid parameter top_n=-1: must be positive", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("zero matches", func(t *testing.T) {
		err := &NotFoundError{Center: "NPM", Header: "ACC-1", Matches: 0}
		assert.Contains(t, err.Error(), "not found")
		assert.Contains(t, err.Error(), "ACC-1")
	})

	t.Run("ambiguous matches", func(t *testing.T) {
		err := &NotFoundError{Center: "NPM", Header: "ACC-1", Matches: 3}
		assert.Contains(t, err.Error(), "ambiguous")
		assert.Contains(t, err.Error(), "3")
	})
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	cause := os.ErrPermission
	err := &PersistenceError{Path: "out/outliers_rules.csv", Err: cause}

	assert.Contains(t, err.Error(), "out/outliers_rules.csv")
	assert.True(t, errors.Is(err, os.ErrPermission), "unwraps to the underlying cause")
}
