package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	PickupTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_transitions_total",
			Help: "Pickup state changes by target status",
		},
		[]string{"status"},
	)

	AcceptRaceLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_accept_conflicts_total",
			Help: "Accept calls that lost the race for a pending pickup",
		},
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Marketplace order state changes by target status",
		},
		[]string{"status"},
	)

	OutOfStock = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_out_of_stock_total",
			Help: "Orders rejected because the listing could not cover the quantity",
		},
	)

	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Points credited for completed pickups",
		},
	)

	PointsRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_redeemed_total",
			Help: "Points spent on rewards",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(PickupTransitions)
	prometheus.MustRegister(AcceptRaceLost)
	prometheus.MustRegister(OrderTransitions)
	prometheus.MustRegister(OutOfStock)
	prometheus.MustRegister(PointsAwarded)
	prometheus.MustRegister(PointsRedeemed)
}

// Middleware records count and latency per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		httpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
