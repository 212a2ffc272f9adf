// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

// Package domain defines the law-office entity records, the nested graph
// snapshot, and the flat per-table representation used for transport.
//
// Every syncable record carries an immutable id (assistants use their
// name) and a mutable updated_at timestamp. The timestamp is the sole
// conflict-resolution signal.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Table names for the flat record collections.
const (
	TableClients      = "clients"
	TableCases        = "cases"
	TableStages       = "stages"
	TableSessions     = "sessions"
	TableInvoices     = "invoices"
	TableInvoiceItems = "invoice_items"
	TableAdminTasks   = "admin_tasks"
	TableAppointments = "appointments"
	TableAccounting   = "accounting_entries"
	TableAssistants   = "assistants"
	TableProfiles     = "profiles"
	TableSiteFinance  = "site_finance_entries"
	TableDocuments    = "case_documents"
)

// AllTables lists every syncable table.
var AllTables = []string{
	TableClients, TableCases, TableStages, TableSessions,
	TableInvoices, TableInvoiceItems,
	TableAdminTasks, TableAppointments, TableAccounting,
	TableAssistants, TableProfiles, TableSiteFinance, TableDocuments,
}

// UpsertOrder lists tables parents-first so remote writes never create
// a child before its parent exists.
var UpsertOrder = []string{
	TableProfiles, TableAssistants,
	TableClients, TableCases, TableStages, TableSessions,
	TableInvoices, TableInvoiceItems,
	TableAdminTasks, TableAppointments, TableAccounting,
	TableSiteFinance, TableDocuments,
}

// DeleteOrder lists tables children-first, mirroring the remote side's
// foreign-key dependency order for deletion propagation.
var DeleteOrder = []string{
	TableDocuments,
	TableSessions, TableStages,
	TableInvoiceItems,
	TableCases, TableClients,
	TableInvoices,
	TableAdminTasks, TableAppointments, TableAccounting,
	TableAssistants, TableProfiles, TableSiteFinance,
}

// Record is the common surface of every syncable entity.
type Record interface {
	// RecordID returns the record's identity within its table
	// (the id field, or the name for assistants).
	RecordID() string
	// LastModified returns the record's updated_at timestamp.
	LastModified() time.Time
}

// ChildRecord is implemented by records owned by a parent record.
type ChildRecord interface {
	Record
	// ParentID returns the immediate parent's record id.
	ParentID() string
}

// NewID returns a locally-generated record id.
func NewID() string { return uuid.New().String() }

// Client is the top of the case hierarchy: a person or company the
// office represents.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Cases     []Case    `json:"cases,omitempty"`
}

func (c Client) RecordID() string        { return c.ID }
func (c Client) LastModified() time.Time { return c.UpdatedAt }

// Case is a legal matter belonging to a client.
type Case struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Opponent  string    `json:"opponent,omitempty"`
	FeeAgreed float64   `json:"fee_agreed,omitempty"`
	FeePaid   float64   `json:"fee_paid,omitempty"`
	Archived  bool      `json:"archived,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Stages    []Stage   `json:"stages,omitempty"`
}

func (c Case) RecordID() string        { return c.ID }
func (c Case) LastModified() time.Time { return c.UpdatedAt }
func (c Case) ParentID() string        { return c.ClientID }

// Stage is one court instance of a case (first instance, appeal, ...).
type Stage struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	CourtName  string    `json:"court_name"`
	CaseNumber string    `json:"case_number,omitempty"`
	CaseYear   string    `json:"case_year,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Closed     bool      `json:"closed,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Sessions   []Session `json:"sessions,omitempty"`
}

func (s Stage) RecordID() string        { return s.ID }
func (s Stage) LastModified() time.Time { return s.UpdatedAt }
func (s Stage) ParentID() string        { return s.CaseID }

// Session is a single court hearing within a stage.
type Session struct {
	ID        string    `json:"id"`
	StageID   string    `json:"stage_id"`
	Date      string    `json:"date"`
	Requests  string    `json:"requests,omitempty"`
	Result    string    `json:"result,omitempty"`
	NextDate  string    `json:"next_date,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Session) RecordID() string        { return s.ID }
func (s Session) LastModified() time.Time { return s.UpdatedAt }
func (s Session) ParentID() string        { return s.StageID }

// Invoice groups billable items issued to a client.
type Invoice struct {
	ID         string        `json:"id"`
	ClientName string        `json:"client_name"`
	Date       string        `json:"date"`
	Paid       bool          `json:"paid,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Items      []InvoiceItem `json:"items,omitempty"`
}

func (i Invoice) RecordID() string        { return i.ID }
func (i Invoice) LastModified() time.Time { return i.UpdatedAt }

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoice_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (i InvoiceItem) RecordID() string        { return i.ID }
func (i InvoiceItem) LastModified() time.Time { return i.UpdatedAt }
func (i InvoiceItem) ParentID() string        { return i.InvoiceID }

// AdminTask is an ownerless office to-do item.
type AdminTask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DueDate   string    `json:"due_date,omitempty"`
	Location  string    `json:"location,omitempty"`
	Completed bool      `json:"completed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t AdminTask) RecordID() string        { return t.ID }
func (t AdminTask) LastModified() time.Time { return t.UpdatedAt }

// Appointment is a dated office appointment.
type Appointment struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Time      string    `json:"time,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Appointment) RecordID() string        { return a.ID }
func (a Appointment) LastModified() time.Time { return a.UpdatedAt }

// AccountingEntry is an office income or expense line.
type AccountingEntry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // "income" or "expense"
	Amount      float64   `json:"amount"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e AccountingEntry) RecordID() string        { return e.ID }
func (e AccountingEntry) LastModified() time.Time { return e.UpdatedAt }

// Assistant is a delegated office user. Assistants are identified by
// name, not by a generated id.
type Assistant struct {
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a Assistant) RecordID() string        { return a.Name }
func (a Assistant) LastModified() time.Time { return a.UpdatedAt }

// Profile is an account profile. An assistant profile carries a
// LawyerID back-reference that redirects storage partitioning and all
// remote reads/writes to the lawyer's id (the effective owner). The
// reference is weak; it is derived configuration, not ownership.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role,omitempty"` // "lawyer" or "assistant"
	LawyerID  string    `json:"lawyer_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Profile) RecordID() string        { return p.ID }
func (p Profile) LastModified() time.Time { return p.UpdatedAt }

// SiteFinancialEntry is a subscription/site-level financial record.
type SiteFinancialEntry struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e SiteFinancialEntry) RecordID() string        { return e.ID }
func (e SiteFinancialEntry) LastModified() time.Time { return e.UpdatedAt }

// Document local states. Metadata and binary payload are stored and
// synchronized independently; LocalState is the join point.
const (
	DocPendingUpload   = "pending_upload"
	DocUploading       = "uploading"
	DocPendingDownload = "pending_download"
	DocDownloading     = "downloading"
	DocSynced          = "synced"
	DocError           = "error"
)

// CaseDocument is a binary attachment's metadata record. CaseID is a
// weak reference, not ownership: documents are garbage-collected by age
// independently of their case.
type CaseDocument struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id,omitempty"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	StoragePath string    `json:"storage_path"`
	LocalState  string    `json:"local_state,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d CaseDocument) RecordID() string        { return d.ID }
func (d CaseDocument) LastModified() time.Time { return d.UpdatedAt }
