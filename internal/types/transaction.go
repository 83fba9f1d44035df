package types

import "github.com/google/uuid"

// TxState is the transaction lifecycle state machine: Active is the
// only non-terminal state.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// OpKind enumerates the operations a Transaction may accumulate.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
	OpBatchInsert
)

// Op is one recorded mutation within a transaction.
type Op struct {
	Kind    OpKind
	Layer   Layer
	ID      uuid.UUID
	Record  Record   // for Insert/Update
	Records []Record // for BatchInsert
}

// RollbackKind enumerates the compensating actions recorded for an Op.
type RollbackKind int

const (
	RollbackDeleteInserted RollbackKind = iota
	RollbackRestoreDeleted
	RollbackRestoreOriginal
)

// RollbackAction undoes one Op; actions run in reverse order on abort.
type RollbackAction struct {
	Kind     RollbackKind
	Layer    Layer
	ID       uuid.UUID
	Original Record // for RollbackRestoreDeleted / RollbackRestoreOriginal
}
