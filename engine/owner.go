// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/lawline/lawsync/domain"
)

// EffectiveOwner resolves the business-data partition key for a signed-in
// profile. An assistant profile's lawyer_id back-reference redirects all
// local-storage partitioning and remote reads/writes to the lawyer's id;
// a lawyer owns their own partition. The value is derived configuration,
// resolved once per session, never synchronized.
func EffectiveOwner(p domain.Profile) string {
	if p.LawyerID != "" {
		return p.LawyerID
	}
	return p.ID
}
