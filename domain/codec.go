// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports a structurally invalid record at the fetch
// boundary. Invalid records are dropped with a warning; they never abort
// a sync cycle.
type ValidationError struct {
	Table  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: %s", e.Table, e.Reason)
}

// DecodeRecord unmarshals one wire record into its typed entity for the
// given table and validates its identity and versioning fields.
func DecodeRecord(table string, raw json.RawMessage) (Record, error) {
	var rec Record
	var err error
	switch table {
	case TableClients:
		var v Client
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableCases:
		var v Case
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableStages:
		var v Stage
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableSessions:
		var v Session
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableInvoices:
		var v Invoice
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableInvoiceItems:
		var v InvoiceItem
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableAdminTasks:
		var v AdminTask
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableAppointments:
		var v Appointment
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableAccounting:
		var v AccountingEntry
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableAssistants:
		var v Assistant
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableProfiles:
		var v Profile
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableSiteFinance:
		var v SiteFinancialEntry
		err = json.Unmarshal(raw, &v)
		rec = v
	case TableDocuments:
		var v CaseDocument
		err = json.Unmarshal(raw, &v)
		rec = v
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if err != nil {
		return nil, &ValidationError{Table: table, Reason: err.Error()}
	}
	if rec.RecordID() == "" {
		return nil, &ValidationError{Table: table, Reason: "missing id"}
	}
	if rec.LastModified().IsZero() {
		return nil, &ValidationError{Table: table, Reason: "missing updated_at"}
	}
	return rec, nil
}

// EncodeRecord marshals a typed record into its wire form. Nested child
// collections are omitted because flattened records carry them nil.
func EncodeRecord(rec Record) (json.RawMessage, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", rec.RecordID(), err)
	}
	return b, nil
}
