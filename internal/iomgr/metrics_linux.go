//go:build linux

package iomgr

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Ring.Stats. Register one per ring, name ends up as the ring label.
type Collector struct {
	ring		*Ring

	depth		*prometheus.Desc
	inflight	*prometheus.Desc
	submitted	*prometheus.Desc
	completed	*prometheus.Desc
	retries		*prometheus.Desc
	cancels		*prometheus.Desc
	stale		*prometheus.Desc
}

func NewCollector(r *Ring, name string) *Collector {
	labels := prometheus.Labels{"ring": name}
	desc := func(metric string, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("mooring", "ring", metric), help, nil, labels)
	}

	return &Collector{
		ring: 		r,
		depth: 		desc("depth", "Max reads in flight."),
		inflight: 	desc("inflight", "Reads the kernel currently owns."),
		submitted: 	desc("submitted_total", "Reads pushed to the submission queue."),
		completed: 	desc("completed_total", "Completions matched to a slot."),
		retries: 	desc("queue_full_total", "Polls that found the queue full."),
		cancels: 	desc("cancels_total", "Cancel requests pushed."),
		stale: 		desc("stale_cqes_total", "Completions whose token named no live slot."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.inflight
	ch <- c.submitted
	ch <- c.completed
	ch <- c.retries
	ch <- c.cancels
	ch <- c.stale
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.ring.Stats()
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(st.Depth))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(st.Inflight))
	ch <- prometheus.MustNewConstMetric(c.submitted, prometheus.CounterValue, float64(st.Submitted))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(st.Completed))
	ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(st.Retries))
	ch <- prometheus.MustNewConstMetric(c.cancels, prometheus.CounterValue, float64(st.Cancels))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.CounterValue, float64(st.Stale))
}
