package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of moderation event processing",
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of events processed",
}, []string{"kind"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of events which failed processing",
}, []string{"kind"})

var burstTripCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_burst_trips",
	Help: "Number of times a member's message window crossed the burst threshold",
})

var promptSentCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_prompts_sent",
	Help: "Number of verification prompts posted, by outcome",
}, []string{"status"})

var verificationStartCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_verification_starts",
	Help: "Number of verification start actions, by outcome",
}, []string{"status"})

var verificationVerdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_verification_verdicts",
	Help: "Number of challenge answers evaluated, by verdict",
}, []string{"verdict"})

var roleAssignCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_role_assignments",
	Help: "Number of role provisioning attempts, by role and outcome",
}, []string{"role", "outcome"})

var pendingChallengesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_pending_challenges",
	Help: "Number of verification challenges held in memory (including expired, unanswered ones)",
})

var pendingTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_pending_tasks",
	Help: "Number of scheduled tasks (eg, prompt deletions) not yet run",
})
