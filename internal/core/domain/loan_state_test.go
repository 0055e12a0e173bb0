package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus_LegalTransitions(t *testing.T) {
	cases := []struct {
		from  LoanStatus
		event LoanEvent
		want  LoanStatus
	}{
		{LoanPending, EventValidate, LoanActive},
		{LoanPending, EventRefuse, LoanRefused},
		{LoanPending, EventCancel, LoanCancelled},
		{LoanActive, EventReturn, LoanReturned},
		{LoanActive, EventRenew, LoanActive},
		{LoanActive, EventMarkOverdue, LoanOverdue},
		{LoanOverdue, EventReturn, LoanReturned},
		{LoanOverdue, EventRenew, LoanActive},
	}

	for _, tc := range cases {
		got, err := NextStatus(tc.from, tc.event)
		require.NoError(t, err, "%s + %s", tc.from, tc.event)
		assert.Equal(t, tc.want, got, "%s + %s", tc.from, tc.event)
	}
}

func TestNextStatus_IllegalTransitions(t *testing.T) {
	cases := []struct {
		from  LoanStatus
		event LoanEvent
	}{
		{LoanReturned, EventReturn},
		{LoanReturned, EventRenew},
		{LoanReturned, EventValidate},
		{LoanRefused, EventValidate},
		{LoanCancelled, EventValidate},
		{LoanActive, EventValidate},
		{LoanActive, EventRefuse},
		{LoanActive, EventCancel},
		{LoanOverdue, EventValidate},
		{LoanPending, EventReturn},
		{LoanPending, EventRenew},
		{LoanPending, EventMarkOverdue},
	}

	for _, tc := range cases {
		_, err := NextStatus(tc.from, tc.event)
		require.Error(t, err, "%s + %s should be rejected", tc.from, tc.event)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestNextStatus_ErrorNamesStatusAndEvent(t *testing.T) {
	_, err := NextStatus(LoanReturned, EventReturn)
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, LoanReturned, transitionErr.From)
	assert.Equal(t, EventReturn, transitionErr.Event)
	assert.Contains(t, err.Error(), "returned")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(LoanPending, EventValidate))
	assert.False(t, CanTransition(LoanReturned, EventValidate))
}

func TestLoanStatus_IsTerminal(t *testing.T) {
	assert.True(t, LoanReturned.IsTerminal())
	assert.True(t, LoanRefused.IsTerminal())
	assert.True(t, LoanCancelled.IsTerminal())
	assert.False(t, LoanPending.IsTerminal())
	assert.False(t, LoanActive.IsTerminal())
	assert.False(t, LoanOverdue.IsTerminal())
}

func TestLoanStatus_IsOutstanding(t *testing.T) {
	assert.True(t, LoanActive.IsOutstanding())
	assert.True(t, LoanOverdue.IsOutstanding())
	assert.False(t, LoanPending.IsOutstanding())
	assert.False(t, LoanReturned.IsOutstanding())
}

func TestRole_IsStaff(t *testing.T) {
	assert.True(t, RoleLibrarian.IsStaff())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleStudent.IsStaff())
}
