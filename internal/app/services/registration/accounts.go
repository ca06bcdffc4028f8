package registration

import (
	"sort"

	"github.com/shipforge/orchestrator/internal/app/domain/account"
)

// selectAccount applies the opaque account-selection policy named in §4.4:
// prefer the account with the lowest observed failure rate (healthiest),
// breaking ties by least-recently-used. Only Selectable accounts
// (status=active) are eligible.
func selectAccount(candidates []account.Account) (account.Account, bool) {
	eligible := make([]account.Account, 0, len(candidates))
	for _, a := range candidates {
		if a.Selectable() {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return account.Account{}, false
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		fi, fj := eligible[i].FailureRate(), eligible[j].FailureRate()
		if fi != fj {
			return fi < fj
		}
		return eligible[i].LastUsedAt.Before(eligible[j].LastUsedAt)
	})
	return eligible[0], true
}
