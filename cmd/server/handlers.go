package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chowline/internal/dispatch"
	"chowline/internal/model"
	"chowline/internal/observability"
	"chowline/internal/payments"
	"chowline/internal/realtime"
	"chowline/internal/store"
	"chowline/internal/webhook"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = 1 << 20

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newMux(
	st *store.Failover,
	ingest *webhook.Handler,
	reconciler *payments.Reconciler,
	dispatcher *dispatch.Dispatcher,
	locations dispatch.LocationSink,
	hub *realtime.Hub,
	metrics *observability.Metrics,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhooks/{platform}/{tenant}", func(w http.ResponseWriter, r *http.Request) {
		platform := model.Platform(r.PathValue("platform"))
		switch platform {
		case model.PlatformIfood, model.PlatformUberEats, model.PlatformQuero, model.PlatformGeneric:
		default:
			http.Error(w, "unknown platform", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		span := metrics.Start("webhook.ingest")
		res := ingest.Process(r.Context(), r.PathValue("tenant"), platform, r.Header.Get("X-Webhook-Signature"), body)
		if res.Success {
			span.End(nil)
		} else {
			span.End(errors.New(res.Message))
		}
		writeResult(w, res.Success, res)
	})

	mux.HandleFunc("POST /payments/webhook", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		span := metrics.Start("payments.reconcile")
		res := reconciler.Process(r.Context(), r.Header.Get("Stripe-Signature"), body)
		if res.Success {
			span.End(nil)
		} else {
			span.End(errors.New(res.Message))
		}
		writeResult(w, res.Success, res)
	})

	mux.HandleFunc("POST /drivers/{id}/location", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		driverID := r.PathValue("id")

		span := metrics.Start("dispatch.ping")
		err := locations.Record(r.Context(), dispatch.Ping{
			DriverID: driverID,
			Lat:      body.Lat,
			Lng:      body.Lng,
			At:       time.Now().UTC(),
		})
		if err == nil {
			// Persist the fix so dispatch queries over storage see it too.
			// Drivers without a stored profile only live in the registry.
			if uerr := st.UpdateDriverLocation(r.Context(), driverID, body.Lat, body.Lng); uerr != nil && !errors.Is(uerr, store.ErrNotFound) {
				log.Printf("driver %s location persist failed: %v", driverID, uerr)
			}
		}
		span.End(err)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /dispatch/nearest", func(w http.ResponseWriter, r *http.Request) {
		lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil {
			http.Error(w, "lat and lng are required", http.StatusBadRequest)
			return
		}
		limit := 5
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		span := metrics.Start("dispatch.nearest")
		drivers, err := dispatcher.FindNearestDrivers(r.Context(), lat, lng, limit)
		span.End(err)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, dispatch.ErrMissingCoordinates) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, drivers)
	})

	mux.HandleFunc("GET /ws/{tenant}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register <- realtime.Subscription{TenantID: r.PathValue("tenant"), Conn: conn}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.Unregister <- conn
					return
				}
			}
		}()
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "ok",
			"storage_degraded": st.Degraded(),
		})
	})

	return mux
}

func writeResult(w http.ResponseWriter, success bool, payload any) {
	status := http.StatusOK
	if !success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
