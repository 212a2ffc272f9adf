// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Snapshot{
		Clients: []Client{
			{
				ID: "c1", Name: "Acme Holdings", UpdatedAt: now,
				Cases: []Case{
					{
						ID: "k1", ClientID: "c1", Subject: "Contract dispute", UpdatedAt: now,
						Stages: []Stage{
							{
								ID: "st1", CaseID: "k1", CourtName: "First Instance", UpdatedAt: now,
								Sessions: []Session{
									{ID: "s1", StageID: "st1", Date: "2025-06-10", UpdatedAt: now},
									{ID: "s2", StageID: "st1", Date: "2025-07-01", UpdatedAt: now},
								},
							},
						},
					},
					{ID: "k2", ClientID: "c1", Subject: "Lease renewal", UpdatedAt: now},
				},
			},
			{ID: "c2", Name: "Jane Doe", UpdatedAt: now},
		},
		Invoices: []Invoice{
			{
				ID: "inv1", ClientName: "Acme Holdings", Date: "2025-06-01", UpdatedAt: now,
				Items: []InvoiceItem{
					{ID: "it1", InvoiceID: "inv1", Description: "Consultation", Amount: 200, UpdatedAt: now},
				},
			},
		},
		AdminTasks:   []AdminTask{{ID: "t1", Title: "Renew bar license", UpdatedAt: now}},
		Appointments: []Appointment{{ID: "ap1", Title: "Client meeting", Date: "2025-06-05", UpdatedAt: now}},
		AccountingEntries: []AccountingEntry{
			{ID: "ac1", Kind: "income", Amount: 500, Date: "2025-06-02", UpdatedAt: now},
		},
		Assistants: []Assistant{{Name: "omar", Permissions: []string{"agenda"}, UpdatedAt: now}},
		Profiles:   []Profile{{ID: "u1", Name: "The Lawyer", Role: "lawyer", UpdatedAt: now}},
		SiteFinanceEntries: []SiteFinancialEntry{
			{ID: "sf1", Amount: 30, Date: "2025-06-01", UpdatedAt: now},
		},
		Documents: []CaseDocument{
			{ID: "d1", CaseID: "k1", Name: "contract.pdf", StoragePath: "u1/d1",
				LocalState: DocSynced, CreatedAt: now, UpdatedAt: now},
		},
	}
}

func TestFlattenAnnotatesParentsAndStripsChildren(t *testing.T) {
	snap := sampleSnapshot(t)
	flat := Flatten(snap)

	require.Len(t, flat[TableClients], 2)
	require.Len(t, flat[TableCases], 2)
	require.Len(t, flat[TableStages], 1)
	require.Len(t, flat[TableSessions], 2)
	require.Len(t, flat[TableInvoiceItems], 1)

	// Parent records carry no nested collections once flattened.
	client := flat[TableClients][0].(Client)
	require.Nil(t, client.Cases)
	stage := flat[TableStages][0].(Stage)
	require.Nil(t, stage.Sessions)
	invoice := flat[TableInvoices][0].(Invoice)
	require.Nil(t, invoice.Items)

	// Children are annotated with their immediate parent id.
	session := flat[TableSessions][0].(Session)
	require.Equal(t, "st1", session.ParentID())
	item := flat[TableInvoiceItems][0].(InvoiceItem)
	require.Equal(t, "inv1", item.ParentID())
}

func TestFlattenDoesNotMutateInput(t *testing.T) {
	snap := sampleSnapshot(t)
	_ = Flatten(snap)
	require.Len(t, snap.Clients[0].Cases, 2)
	require.Len(t, snap.Clients[0].Cases[0].Stages, 1)
	require.Len(t, snap.Invoices[0].Items, 1)
}

func TestRoundTrip(t *testing.T) {
	snap := sampleSnapshot(t)
	rebuilt := Reconstruct(Flatten(snap))
	require.Equal(t, snap, rebuilt)
}

func TestRoundTripEmpty(t *testing.T) {
	rebuilt := Reconstruct(Flatten(&Snapshot{}))
	require.Equal(t, &Snapshot{}, rebuilt)
}

func TestReconstructDropsOrphans(t *testing.T) {
	now := time.Now().UTC()
	flat := Tables{
		TableClients: {Client{ID: "c1", Name: "A", UpdatedAt: now}},
		TableCases:   {Case{ID: "k1", ClientID: "c1", UpdatedAt: now}},
		TableStages: {
			Stage{ID: "st1", CaseID: "k1", UpdatedAt: now},
			Stage{ID: "st-orphan", CaseID: "k-missing", UpdatedAt: now},
		},
		TableSessions: {
			Session{ID: "s1", StageID: "st1", UpdatedAt: now},
			Session{ID: "s-orphan", StageID: "st-missing", UpdatedAt: now},
		},
		TableInvoiceItems: {
			InvoiceItem{ID: "it-orphan", InvoiceID: "inv-missing", UpdatedAt: now},
		},
	}
	snap := Reconstruct(flat)

	require.Len(t, snap.Clients, 1)
	require.Len(t, snap.Clients[0].Cases, 1)
	require.Len(t, snap.Clients[0].Cases[0].Stages, 1)
	require.Len(t, snap.Clients[0].Cases[0].Stages[0].Sessions, 1)
	require.Equal(t, "s1", snap.Clients[0].Cases[0].Stages[0].Sessions[0].ID)
	require.Empty(t, snap.Invoices)
}
