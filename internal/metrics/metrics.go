package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsocio_emails_total",
			Help: "Per-recipient send attempts by outcome",
		},
		[]string{"status"}, // sent|failed
	)

	DispatchPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bsocio_dispatch_pages_total",
			Help: "Recipient pages fetched and checkpointed by the dispatch loop",
		},
	)

	CampaignsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsocio_campaigns_total",
			Help: "Campaign lifecycle counter by stage",
		},
		[]string{"stage"}, // enqueued|completed|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EmailsTotal,
		DispatchPagesTotal,
		CampaignsTotal,
	)
}
