package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_tokens_issued_total",
		Help: "Total number of token families issued.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_tokens_refreshed_total",
		Help: "Total number of refresh rotations performed.",
	})
	MachineTokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_machine_tokens_issued_total",
		Help: "Total number of machine-client tokens issued.",
	})
	IntrospectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_introspections_total",
		Help: "Total number of introspection requests served.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_tokens_revoked_total",
		Help: "Total number of token ids blacklisted.",
	})
	SigningKeysGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iam_signing_keys_generated_total",
		Help: "Total number of signing keys generated.",
	})
)

// Register attaches the custom metrics to the given registry. It should be
// called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		TokensRefreshedTotal,
		MachineTokensIssuedTotal,
		IntrospectionsTotal,
		TokensRevokedTotal,
		SigningKeysGeneratedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
