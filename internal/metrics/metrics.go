// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ContactsSelected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "texting_contacts_selected_total",
		Help: "Contact selection queries served, by mode (list or count).",
	}, []string{"mode"})

	EligibilityChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "texting_eligibility_checks_total",
		Help: "Row-level texting hours checks, by result.",
	}, []string{"result"})

	MessagesQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "texting_messages_queued_total",
		Help: "Outbound messages accepted or rejected for sending, by result.",
	}, []string{"result"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "texting_cache_lookups_total",
		Help: "Cache lookups, by cache name and hit or miss.",
	}, []string{"cache", "result"})
)

var registerOnce sync.Once

// MustRegister registers every collector with reg once per process.
func MustRegister(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(ContactsSelected, EligibilityChecks, MessagesQueued, CacheLookups)
	})
}

// CacheObserver returns a hit/miss callback for the named cache.
func CacheObserver(name string) func(hit bool) {
	hit := CacheLookups.WithLabelValues(name, "hit")
	miss := CacheLookups.WithLabelValues(name, "miss")
	return func(ok bool) {
		if ok {
			hit.Inc()
		} else {
			miss.Inc()
		}
	}
}

func Eligibility(ok bool) {
	if ok {
		EligibilityChecks.WithLabelValues("eligible").Inc()
		return
	}
	EligibilityChecks.WithLabelValues("outside_hours").Inc()
}
