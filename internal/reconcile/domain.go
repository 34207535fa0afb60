// Package reconcile ingests bulk physical counts and corrects the ledger to
// match reality. Corrections are new backdated ledger entries; history is
// never rewritten.
package reconcile

import (
	"errors"
	"fmt"
	"time"
)

// Epsilon guards floating-point noise when classifying count deltas.
const Epsilon = 0.001

// InputField tags which count track(s) the operator supplied for a row.
type InputField string

const (
	// InputPack means only the pack count was supplied.
	InputPack InputField = "pack"
	// InputBase means only the base count was supplied.
	InputBase InputField = "base"
	// InputBoth means both counts were supplied and trusted verbatim.
	InputBoth InputField = "both"
)

// UploadLine is one row of the tabular count as submitted. Numeric fields stay
// strings so a malformed cell can be reported against its row instead of
// failing the whole decode.
type UploadLine struct {
	ItemID    int64  `json:"itemId,omitempty"`
	ItemType  string `json:"type,omitempty"`
	ItemName  string `json:"name,omitempty"`
	PackCount string `json:"packCount,omitempty"`
	BaseCount string `json:"baseCount,omitempty"`
	MinStock  string `json:"minStock,omitempty"`
}

// BatchInput is one reconciliation submission.
type BatchInput struct {
	ReconciliationDate time.Time
	PerformedBy        string
	Notes              string
	FileName           string
	Lines              []UploadLine
}

// ReportRow captures the before/after stock picture for one counted item.
type ReportRow struct {
	ItemID            int64      `json:"itemId"`
	ItemName          string     `json:"itemName"`
	PreviousPackStock float64    `json:"previousPackStock"`
	PreviousBaseStock float64    `json:"previousBaseStock"`
	NewPackStock      float64    `json:"newPackStock"`
	NewBaseStock      float64    `json:"newBaseStock"`
	PackDifference    float64    `json:"packDifference"`
	BaseDifference    float64    `json:"baseDifference"`
	InputField        InputField `json:"inputField"`
}

// InvalidRow records a count row that could not be applied.
type InvalidRow struct {
	RowNumber    int    `json:"rowNumber"`
	RawInput     string `json:"rawInput"`
	ErrorMessage string `json:"errorMessage"`
}

// MinStockChange records a threshold update supplied alongside the count.
type MinStockChange struct {
	ItemID   int64   `json:"itemId"`
	ItemName string  `json:"itemName"`
	Previous float64 `json:"previous"`
	New      float64 `json:"new"`
}

// Report is the persisted, immutable outcome of one reconciliation run.
type Report struct {
	ID                 string           `json:"id"`
	ReconciliationDate time.Time        `json:"reconciliationDate"`
	UploadDate         time.Time        `json:"uploadDate"`
	PerformedBy        string           `json:"performedBy"`
	TotalItems         int              `json:"totalItems"`
	AdjustedItems      []ReportRow      `json:"adjustedItems"`
	UnchangedItems     []ReportRow      `json:"unchangedItems"`
	InvalidItems       []InvalidRow     `json:"invalidItems"`
	MinStockChanges    []MinStockChange `json:"minStockChanges"`
	FileName           string           `json:"fileName,omitempty"`
	Notes              string           `json:"notes,omitempty"`
}

// Summary condenses a report for the submission response and history listing.
type Summary struct {
	Total           int `json:"total"`
	Adjusted        int `json:"adjusted"`
	Unchanged       int `json:"unchanged"`
	Invalid         int `json:"invalid"`
	MinStockChanged int `json:"minStockChanged"`
}

// Summarize derives the summary counts from a report.
func (r Report) Summarize() Summary {
	return Summary{
		Total:           r.TotalItems,
		Adjusted:        len(r.AdjustedItems),
		Unchanged:       len(r.UnchangedItems),
		Invalid:         len(r.InvalidItems),
		MinStockChanged: len(r.MinStockChanges),
	}
}

// ReportHeader is a listing row for the reconciliation history.
type ReportHeader struct {
	ID                 string    `json:"id"`
	ReconciliationDate time.Time `json:"reconciliationDate"`
	UploadDate         time.Time `json:"uploadDate"`
	PerformedBy        string    `json:"performedBy"`
	FileName           string    `json:"fileName,omitempty"`
	Summary            Summary   `json:"summary"`
}

var (
	// ErrEmptyBatch indicates a submission with no count lines.
	ErrEmptyBatch = errors.New("reconcile: batch contains no lines")
	// ErrPerformerRequired indicates a submission without the counting operator.
	ErrPerformerRequired = errors.New("reconcile: performedBy is required")
	// ErrDateRequired indicates a submission without the count's logical timestamp.
	ErrDateRequired = errors.New("reconcile: reconciliationDate is required")
	// ErrReportNotFound indicates an unknown report id.
	ErrReportNotFound = errors.New("reconcile: report not found")
)

// DuplicateUploadError reports a resubmission of an already-applied batch,
// carrying the id of the report produced by the first run.
type DuplicateUploadError struct {
	ReportID string
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("reconcile: batch already applied as report %s", e.ReportID)
}

// Per-row validation messages surfaced on invalid rows.
const (
	msgItemNotFound    = "Item not found"
	msgMissingCount    = "Must provide either Pack Stock or Base Stock"
	msgInvalidPackStock = "Invalid Pack Stock value"
	msgInvalidBaseStock = "Invalid Base Stock value"
)
