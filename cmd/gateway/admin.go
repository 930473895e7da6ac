package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/gateway"
	"github.com/wasmbed/wasmbed/internal/store"
)

const adminRequestTimeout = 5 * time.Second

// createApplicationRequest is the wasmctl deploy payload: PayloadBytes is
// the raw WebAssembly module, never base64-wrapped twice since
// encoding/json already base64-encodes a []byte field.
type createApplicationRequest struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	PayloadBytes []byte         `json:"payload_bytes"`
	Selector     fleet.Selector `json:"selector"`
}

// applicationsHandler serves wasmctl's "deploy" command: it persists a new
// Application record and runs one reconcile pass immediately, rather than
// waiting for the next scheduled tick, so `wasmctl deploy` observes a
// prompt result.
func applicationsHandler(st store.Store, srv *gateway.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req createApplicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
		defer cancel()

		app := fleet.Application{
			Name:         req.Name,
			DisplayName:  req.DisplayName,
			PayloadBytes: req.PayloadBytes,
			Selector:     req.Selector,
			Phase:        fleet.AppCreating,
		}
		app.Phase = fleet.TransitionApplication(srv.Logger(), app.Name, app.Phase, fleet.AppDeploying)
		if err := st.Put(ctx, "application", app.Name, app); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := fleet.ReconcileApplication(ctx, srv.Logger(), st, srv, app.Name); err != nil {
			srv.Logger().Warn("admin: immediate reconcile after deploy failed", "application", app.Name, "error", err)
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// applicationStopHandler serves wasmctl's "stop" command: it dispatches
// ApplicationStop to every device the application is currently deployed to
// and marks the record Stopping.
func applicationStopHandler(st store.Store, srv *gateway.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/admin/applications/"), "/stop")
		if name == "" {
			http.Error(w, "application name is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
		defer cancel()

		var app fleet.Application
		found, err := st.Get(ctx, "application", name, &app)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}

		for deviceName, status := range app.DeviceStatus {
			if status.Phase == fleet.DeviceAppStopped {
				continue
			}
			if err := srv.DispatchStop(ctx, deviceName, name); err != nil {
				srv.Logger().Warn("admin: stop dispatch failed", "application", name, "device", deviceName, "error", err)
			}
		}
		app.Phase = fleet.TransitionApplication(srv.Logger(), name, app.Phase, fleet.AppStopping)
		if err := st.Put(ctx, "application", name, app); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// devicesHandler serves wasmctl's "devices" command: a flat list of every
// known device and its current phase.
func devicesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
		defer cancel()

		names, err := st.List(ctx, "device")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		devices := make([]fleet.Device, 0, len(names))
		for _, name := range names {
			var dev fleet.Device
			if found, err := st.Get(ctx, "device", name, &dev); err == nil && found {
				devices = append(devices, dev)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(devices)
	}
}
