package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(creditsDebitedTotal, ledgerInconsistencyTotal, teamCreditResetsTotal)
}

var (
	creditsDebitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_debited_total",
			Help: "Credits debited from personal and team accounts.",
		},
		[]string{"account"}, // 'personal' | 'team'
	)

	ledgerInconsistencyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_inconsistency_total",
			Help: "Completed jobs whose debit failed and was not rolled back.",
		},
		[]string{"reason"},
	)

	teamCreditResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "team_credit_resets_total",
			Help: "Team credit pools reset at the end of their cycle.",
		},
	)
)

func AddCreditsDebited(account string, n int) {
	creditsDebitedTotal.WithLabelValues(norm(account)).Add(float64(n))
}

func IncLedgerInconsistency(reason string) {
	ledgerInconsistencyTotal.WithLabelValues(norm(reason)).Inc()
}

func AddTeamCreditResets(n int) {
	teamCreditResetsTotal.Add(float64(n))
}
