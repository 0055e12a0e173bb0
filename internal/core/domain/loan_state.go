package domain

// Role represents user role in the system
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleLibrarian Role = "LIBRARIAN"
	RoleAdmin     Role = "ADMIN"
)

// IsStaff reports whether the role may perform administrative loan operations
func (r Role) IsStaff() bool {
	return r == RoleLibrarian || r == RoleAdmin
}

// LoanStatus represents the status of a loan
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanActive    LoanStatus = "active"
	LoanRefused   LoanStatus = "refused"
	LoanCancelled LoanStatus = "cancelled"
	LoanOverdue   LoanStatus = "overdue"
	LoanReturned  LoanStatus = "returned"
)

// IsTerminal reports whether no further transitions are possible
func (s LoanStatus) IsTerminal() bool {
	return s == LoanReturned || s == LoanRefused || s == LoanCancelled
}

// IsOutstanding reports whether the loan currently holds a copy
func (s LoanStatus) IsOutstanding() bool {
	return s == LoanActive || s == LoanOverdue
}

// LoanEvent represents an action applied to a loan
type LoanEvent string

const (
	EventValidate    LoanEvent = "validate"
	EventRefuse      LoanEvent = "refuse"
	EventCancel      LoanEvent = "cancel"
	EventReturn      LoanEvent = "return"
	EventRenew       LoanEvent = "renew"
	EventMarkOverdue LoanEvent = "mark_overdue"
)

type transition struct {
	From  LoanStatus
	Event LoanEvent
}

// loanTransitions is the single source of truth for legal status changes.
// Any (status, event) pair not listed here is rejected.
var loanTransitions = map[transition]LoanStatus{
	{LoanPending, EventValidate}:   LoanActive,
	{LoanPending, EventRefuse}:     LoanRefused,
	{LoanPending, EventCancel}:     LoanCancelled,
	{LoanActive, EventReturn}:      LoanReturned,
	{LoanActive, EventMarkOverdue}: LoanOverdue,
	{LoanActive, EventRenew}:       LoanActive,
	{LoanOverdue, EventReturn}:     LoanReturned,
	// Renewing an overdue loan is allowed and brings it back to active
	{LoanOverdue, EventRenew}: LoanActive,
}

// NextStatus returns the status a loan moves to when event is applied,
// or ErrInvalidTransition if the pair is not in the transition table.
func NextStatus(from LoanStatus, event LoanEvent) (LoanStatus, error) {
	to, ok := loanTransitions[transition{From: from, Event: event}]
	if !ok {
		return "", &InvalidTransitionError{From: from, Event: event}
	}
	return to, nil
}

// CanTransition reports whether event is legal from the given status
func CanTransition(from LoanStatus, event LoanEvent) bool {
	_, ok := loanTransitions[transition{From: from, Event: event}]
	return ok
}

// BookStatus represents the status of a book title
type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookBorrowed    BookStatus = "borrowed"
	BookReserved    BookStatus = "reserved"
	BookMaintenance BookStatus = "maintenance"
	BookLost        BookStatus = "lost"
	BookDeleted     BookStatus = "deleted"
)

// Lending policy constants
const (
	MaxLoansPerUser      = 5
	MaxRenewals          = 2
	DefaultLoanDays      = 14
	DefaultExtensionDays = 7
)
