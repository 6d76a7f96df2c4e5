package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

func TestIsValid(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusFinalized}
	allowed := map[string]bool{
		"null->Pending":         true,
		"Pending->Processing":   true,
		"Processing->Finalized": true,
	}

	froms := []*Status{nil, StatusPending.Ptr(), StatusProcessing.Ptr(), StatusFinalized.Ptr()}
	for _, from := range froms {
		for _, to := range all {
			fromName := "null"
			if from != nil {
				fromName = string(*from)
			}
			key := fromName + "->" + string(to)

			t.Run(key, func(t *testing.T) {
				assert.Equal(t, allowed[key], IsValid(from, to))
			})
		}
	}
}

func TestIsValid_UnmappedFromDeniesEverything(t *testing.T) {
	unknown := Status("Cancelled")
	for _, to := range []Status{StatusPending, StatusProcessing, StatusFinalized, unknown} {
		assert.False(t, IsValid(&unknown, to))
	}
}

func TestEnsureValid(t *testing.T) {
	t.Run("valid transition", func(t *testing.T) {
		assert.NoError(t, EnsureValid(StatusPending.Ptr(), StatusProcessing))
		assert.NoError(t, EnsureValid(nil, StatusPending))
	})

	t.Run("null from lists initial statuses", func(t *testing.T) {
		err := EnsureValid(nil, StatusProcessing)
		require.Error(t, err)
		assert.Equal(t, "invalid status transition: 'null' -> 'Processing'. Expected: [Pending].", err.Error())

		var transitionErr *InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Nil(t, transitionErr.From)
		assert.Equal(t, StatusProcessing, transitionErr.To)
		assert.Equal(t, []Status{StatusPending}, transitionErr.Expected)
	})

	t.Run("skip is rejected with the next allowed status", func(t *testing.T) {
		err := EnsureValid(StatusPending.Ptr(), StatusFinalized)
		require.Error(t, err)
		assert.Equal(t, "invalid status transition: 'Pending' -> 'Finalized'. Expected: [Processing].", err.Error())
	})

	t.Run("terminal status has an empty expected set", func(t *testing.T) {
		err := EnsureValid(StatusFinalized.Ptr(), StatusPending)
		require.Error(t, err)
		assert.Equal(t, "invalid status transition: 'Finalized' -> 'Pending'. Expected: [].", err.Error())
	})

	t.Run("unmapped from has an empty expected set", func(t *testing.T) {
		unknown := Status("Cancelled")
		err := EnsureValid(&unknown, StatusPending)
		require.Error(t, err)
		assert.Equal(t, "invalid status transition: 'Cancelled' -> 'Pending'. Expected: [].", err.Error())
	})

	t.Run("error matches domain sentinels", func(t *testing.T) {
		err := EnsureValid(nil, StatusFinalized)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestNextAllowed_ReturnsCopy(t *testing.T) {
	next := NextAllowed(nil)
	next[0] = StatusFinalized

	assert.Equal(t, []Status{StatusPending}, NextAllowed(nil))
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Pending", "Processing", "Finalized"} {
		status, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, s, status.String())
	}

	_, err := ParseStatus("pending")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
