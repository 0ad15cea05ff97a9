package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcClientHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_grpc_client_handled_total",
			Help: "Total number of gRPC calls made to identity services.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	grpcClientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtchat_grpc_client_duration_seconds",
			Help:    "gRPC client call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grpc_method"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	roomsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtchat_rooms_created_total",
			Help: "Rooms created, by kind.",
		},
		[]string{"kind"},
	)
	slugRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtchat_slug_retries_total",
			Help: "Slug candidates rejected because they were already taken.",
		},
	)
	messagesAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtchat_messages_appended_total",
			Help: "Messages appended to room logs.",
		},
	)
	fanoutDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtchat_fanout_dropped_connections_total",
			Help: "Connections closed because their send buffer overflowed.",
		},
	)
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtchat_presence_online_pairs",
			Help: "Number of (user, room) pairs currently online.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcClientHandledTotal,
		grpcClientDuration,
		wsActiveConnections,
		wsEventsTotal,
		roomsCreatedTotal,
		slugRetriesTotal,
		messagesAppendedTotal,
		fanoutDroppedTotal,
		onlineUsers,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// GRPCClientMetricsUnaryInterceptor counts and times outgoing identity calls.
func GRPCClientMetricsUnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		service, name := splitFullMethod(method)
		grpcClientHandledTotal.WithLabelValues(service, name, status.Code(err).String()).Inc()
		grpcClientDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		return err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncRoomCreated(kind string) {
	roomsCreatedTotal.WithLabelValues(kind).Inc()
}

func IncSlugRetry() {
	slugRetriesTotal.Inc()
}

func IncMessageAppended() {
	messagesAppendedTotal.Inc()
}

func IncFanoutDropped() {
	fanoutDroppedTotal.Inc()
}

func SetOnlinePairs(n int) {
	onlineUsers.Set(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
