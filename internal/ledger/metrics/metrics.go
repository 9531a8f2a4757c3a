package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	JournalGroupsPosted  prometheus.Counter
	JournalRejections    *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	BalanceMutations     prometheus.Counter
	BalanceRejections    *prometheus.CounterVec
	BalanceCASRetries    prometheus.Counter
	BalanceCASExhausted  prometheus.Counter
	AccountsCreated      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		JournalGroupsPosted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_journal_groups_posted_total",
			Help: "Journal groups validated and persisted as pending.",
		}),
		JournalRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_journal_rejections_total",
			Help: "Journal groups rejected before persistence.",
		}, []string{"reason"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_status_transitions_total",
			Help: "Journal group lifecycle transitions by target status.",
		}, []string{"to"}),
		BalanceMutations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_balance_mutations_total",
			Help: "Balance deltas applied through the mutator.",
		}),
		BalanceRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_balance_rejections_total",
			Help: "Balance deltas rejected by the mutator.",
		}, []string{"reason"}),
		BalanceCASRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_balance_cas_retries_total",
			Help: "Compare-and-swap retries caused by concurrent writers.",
		}),
		BalanceCASExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_balance_cas_exhausted_total",
			Help: "Balance mutations abandoned after exhausting CAS retries.",
		}),
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_ledger_accounts_created_total",
			Help: "Accounts created.",
		}),
	}
}
