package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/store"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_messages_consumed_total",
		Help: "Total ride-created messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	ridesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_rides_started_total",
		Help: "Total rides handed to the dispatch engine",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, ridesStarted)
}

// rideCreated is the intake service's trigger message.
type rideCreated struct {
	RideID string `json:"ride_id"`
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	_ = godotenv.Load()

	log := logging.NewLogger(getenv("LOG_LEVEL", "info"))

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{"localhost:9092"}
	if brokersEnv != "" {
		brokers = config.SplitAndTrim(brokersEnv)
	}
	topic := getenv("KAFKA_TOPIC", "ride-requests-created")
	group := getenv("KAFKA_GROUP", "ride-dispatch")

	st := store.NewRedisStore(getenv("REDIS_ADDR", "localhost:6379"), os.Getenv("REDIS_PASSWORD"))
	defer st.Close()

	var sinks events.MultiSink
	producer := events.NewProducer(brokers, getenv("KAFKA_EVENTS_TOPIC", "dispatch-events"))
	defer producer.Close()
	sinks = append(sinks, producer)
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		audit, err := store.NewAuditStore(dsn)
		if err != nil {
			log.Error("audit store unavailable, continuing without it", "error", err)
		} else {
			defer audit.Close()
			sinks = append(sinks, audit)
		}
	}
	if endpoint := os.Getenv("PUSH_ENDPOINT"); endpoint != "" {
		sinks = append(sinks, notify.NewPushNotifier(endpoint, nil))
	}

	engine := dispatch.NewEngine(st, sinks, log)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := st.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	log.Info("dispatcher listening", "topic", topic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("shutting down dispatcher")
				return
			}
			log.Warn("kafka read error", "error", err, "backoff", backoff.String())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev rideCreated
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.RideID == "" {
			msgsInvalid.Inc()
			log.Warn("invalid ride-created message", "error", err)
			continue
		}

		ridesStarted.Inc()
		// one engine run per ride; both per-ride processes run until
		// their own terminal states
		go func(rideID string) {
			if err := engine.HandleRideCreated(ctx, rideID); err != nil {
				log.Error("dispatch ended with error", "ride_id", rideID, "error", err)
			}
		}(ev.RideID)
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
