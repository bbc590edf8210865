// Package domain holds the typed identifiers shared across the module.
//
// Every entity key in the store is a bigint; giving each its own type keeps
// a registration ID from being passed where an exam ID is expected without
// the compiler noticing.
package domain

import "strconv"

type (
	// UserID identifies a candidate or administrator account.
	UserID int64
	// ExamID identifies an exam.
	ExamID int64
	// ExamSiteID identifies a physical exam site.
	ExamSiteID int64
	// RegistrationID identifies one candidate's registration for one exam.
	RegistrationID int64
	// OrderID is the internal key of a payment order. The human-facing key
	// is the order number, generated separately.
	OrderID int64
)

func (id UserID) IsZero() bool         { return id == 0 }
func (id ExamID) IsZero() bool         { return id == 0 }
func (id ExamSiteID) IsZero() bool     { return id == 0 }
func (id RegistrationID) IsZero() bool { return id == 0 }
func (id OrderID) IsZero() bool        { return id == 0 }

func (id UserID) String() string         { return strconv.FormatInt(int64(id), 10) }
func (id ExamID) String() string         { return strconv.FormatInt(int64(id), 10) }
func (id ExamSiteID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id RegistrationID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id OrderID) String() string        { return strconv.FormatInt(int64(id), 10) }
