package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpaland/chan-sccp/internal/call"
)

// CallStatsProvider exposes the call-control core's state for scraping.
type CallStatsProvider interface {
	ChannelCount() int
	AllocatorPosition() uint32
	LineSnapshots() []call.LineSnapshot
	DeviceSnapshots() []call.DeviceSnapshot
}

// MediaStatsProvider exposes the media transport's session pool.
type MediaStatsProvider interface {
	Count() int
}

// Collector is a prometheus.Collector that reads the call core at scrape
// time; nothing is pre-aggregated between scrapes.
type Collector struct {
	calls     CallStatsProvider
	media     MediaStatsProvider
	startTime time.Time

	channelsDesc      *prometheus.Desc
	lineActiveDesc    *prometheus.Desc
	lineHoldDesc      *prometheus.Desc
	deviceChannelDesc *prometheus.Desc
	mediaSessionsDesc *prometheus.Desc
	allocatorDesc     *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a metrics collector. Either provider may be nil.
func NewCollector(calls CallStatsProvider, media MediaStatsProvider, startTime time.Time) *Collector {
	return &Collector{
		calls:     calls,
		media:     media,
		startTime: startTime,

		channelsDesc: prometheus.NewDesc(
			"sccp_channels",
			"Number of live channels in the process",
			nil, nil,
		),
		lineActiveDesc: prometheus.NewDesc(
			"sccp_line_active_channels",
			"Number of active (connected) channels per line",
			[]string{"line"}, nil,
		),
		lineHoldDesc: prometheus.NewDesc(
			"sccp_line_hold_channels",
			"Number of held channels per line",
			[]string{"line"}, nil,
		),
		deviceChannelDesc: prometheus.NewDesc(
			"sccp_device_channels",
			"Number of channels per registered device",
			[]string{"device"}, nil,
		),
		mediaSessionsDesc: prometheus.NewDesc(
			"sccp_media_sessions_active",
			"Number of active station media sessions",
			nil, nil,
		),
		allocatorDesc: prometheus.NewDesc(
			"sccp_call_id_position",
			"Next call id the allocator will hand out",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"sccp_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.channelsDesc
	ch <- c.lineActiveDesc
	ch <- c.lineHoldDesc
	ch <- c.deviceChannelDesc
	ch <- c.mediaSessionsDesc
	ch <- c.allocatorDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.calls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.channelsDesc, prometheus.GaugeValue,
			float64(c.calls.ChannelCount()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.allocatorDesc, prometheus.GaugeValue,
			float64(c.calls.AllocatorPosition()),
		)
		for _, l := range c.calls.LineSnapshots() {
			ch <- prometheus.MustNewConstMetric(
				c.lineActiveDesc, prometheus.GaugeValue,
				float64(l.ActiveChannels), l.Name,
			)
			ch <- prometheus.MustNewConstMetric(
				c.lineHoldDesc, prometheus.GaugeValue,
				float64(l.HeldChannels), l.Name,
			)
		}
		for _, d := range c.calls.DeviceSnapshots() {
			ch <- prometheus.MustNewConstMetric(
				c.deviceChannelDesc, prometheus.GaugeValue,
				float64(d.ChannelCount), d.ID,
			)
		}
	}

	if c.media != nil {
		ch <- prometheus.MustNewConstMetric(
			c.mediaSessionsDesc, prometheus.GaugeValue,
			float64(c.media.Count()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
