// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package domain

// Snapshot is the full nested business-data graph for one owner, as
// persisted in the local replica store.
type Snapshot struct {
	Clients            []Client             `json:"clients,omitempty"`
	Invoices           []Invoice            `json:"invoices,omitempty"`
	AdminTasks         []AdminTask          `json:"admin_tasks,omitempty"`
	Appointments       []Appointment        `json:"appointments,omitempty"`
	AccountingEntries  []AccountingEntry    `json:"accounting_entries,omitempty"`
	Assistants         []Assistant          `json:"assistants,omitempty"`
	Profiles           []Profile            `json:"profiles,omitempty"`
	SiteFinanceEntries []SiteFinancialEntry `json:"site_finance_entries,omitempty"`
	Documents          []CaseDocument       `json:"documents,omitempty"`
}

// Tables is the flat per-table representation of a snapshot: one record
// slice per table, each child annotated with its immediate parent id and
// stripped of nested collections.
type Tables map[string][]Record

// Flatten converts a nested graph into flat per-table record slices.
// It is pure and total for any well-formed graph: child collections are
// nil'd on the emitted parent copies and each child carries its parent
// id already (set at creation time).
func Flatten(s *Snapshot) Tables {
	t := Tables{}
	for _, cl := range s.Clients {
		for _, cs := range cl.Cases {
			for _, st := range cs.Stages {
				for _, se := range st.Sessions {
					t[TableSessions] = append(t[TableSessions], se)
				}
				st.Sessions = nil
				t[TableStages] = append(t[TableStages], st)
			}
			cs.Stages = nil
			t[TableCases] = append(t[TableCases], cs)
		}
		cl.Cases = nil
		t[TableClients] = append(t[TableClients], cl)
	}
	for _, inv := range s.Invoices {
		for _, it := range inv.Items {
			t[TableInvoiceItems] = append(t[TableInvoiceItems], it)
		}
		inv.Items = nil
		t[TableInvoices] = append(t[TableInvoices], inv)
	}
	for _, r := range s.AdminTasks {
		t[TableAdminTasks] = append(t[TableAdminTasks], r)
	}
	for _, r := range s.Appointments {
		t[TableAppointments] = append(t[TableAppointments], r)
	}
	for _, r := range s.AccountingEntries {
		t[TableAccounting] = append(t[TableAccounting], r)
	}
	for _, r := range s.Assistants {
		t[TableAssistants] = append(t[TableAssistants], r)
	}
	for _, r := range s.Profiles {
		t[TableProfiles] = append(t[TableProfiles], r)
	}
	for _, r := range s.SiteFinanceEntries {
		t[TableSiteFinance] = append(t[TableSiteFinance], r)
	}
	for _, r := range s.Documents {
		t[TableDocuments] = append(t[TableDocuments], r)
	}
	return t
}

// Reconstruct is the inverse of Flatten. It builds id->children indexes
// one relationship level at a time and nests children under their
// parents. A child referencing a non-existent parent id is silently
// dropped (orphan discard; the drop is never treated as a deletion).
func Reconstruct(t Tables) *Snapshot {
	s := &Snapshot{}

	sessionsByStage := map[string][]Session{}
	for _, r := range t[TableSessions] {
		if se, ok := r.(Session); ok {
			sessionsByStage[se.StageID] = append(sessionsByStage[se.StageID], se)
		}
	}
	stagesByCase := map[string][]Stage{}
	for _, r := range t[TableStages] {
		if st, ok := r.(Stage); ok {
			st.Sessions = sessionsByStage[st.ID]
			stagesByCase[st.CaseID] = append(stagesByCase[st.CaseID], st)
		}
	}
	casesByClient := map[string][]Case{}
	for _, r := range t[TableCases] {
		if cs, ok := r.(Case); ok {
			cs.Stages = stagesByCase[cs.ID]
			casesByClient[cs.ClientID] = append(casesByClient[cs.ClientID], cs)
		}
	}
	for _, r := range t[TableClients] {
		if cl, ok := r.(Client); ok {
			cl.Cases = casesByClient[cl.ID]
			s.Clients = append(s.Clients, cl)
		}
	}

	itemsByInvoice := map[string][]InvoiceItem{}
	for _, r := range t[TableInvoiceItems] {
		if it, ok := r.(InvoiceItem); ok {
			itemsByInvoice[it.InvoiceID] = append(itemsByInvoice[it.InvoiceID], it)
		}
	}
	for _, r := range t[TableInvoices] {
		if inv, ok := r.(Invoice); ok {
			inv.Items = itemsByInvoice[inv.ID]
			s.Invoices = append(s.Invoices, inv)
		}
	}

	for _, r := range t[TableAdminTasks] {
		if v, ok := r.(AdminTask); ok {
			s.AdminTasks = append(s.AdminTasks, v)
		}
	}
	for _, r := range t[TableAppointments] {
		if v, ok := r.(Appointment); ok {
			s.Appointments = append(s.Appointments, v)
		}
	}
	for _, r := range t[TableAccounting] {
		if v, ok := r.(AccountingEntry); ok {
			s.AccountingEntries = append(s.AccountingEntries, v)
		}
	}
	for _, r := range t[TableAssistants] {
		if v, ok := r.(Assistant); ok {
			s.Assistants = append(s.Assistants, v)
		}
	}
	for _, r := range t[TableProfiles] {
		if v, ok := r.(Profile); ok {
			s.Profiles = append(s.Profiles, v)
		}
	}
	for _, r := range t[TableSiteFinance] {
		if v, ok := r.(SiteFinancialEntry); ok {
			s.SiteFinanceEntries = append(s.SiteFinanceEntries, v)
		}
	}
	for _, r := range t[TableDocuments] {
		if v, ok := r.(CaseDocument); ok {
			s.Documents = append(s.Documents, v)
		}
	}
	return s
}
