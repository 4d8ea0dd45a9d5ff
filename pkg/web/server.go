// Package web serves the read-mostly JSON API and the embedded map viewer
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/tosih/fuelcalc/pkg/bank"
	"github.com/tosih/fuelcalc/pkg/builder"
	"github.com/tosih/fuelcalc/pkg/compare"
	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/store"
	"github.com/tosih/fuelcalc/pkg/validate"
)

//go:embed templates/*
var templates embed.FS

// Server exposes the map engine over HTTP
type Server struct {
	store   *store.Store
	builder *builder.Builder
	banks   *bank.Manager
	configs []models.MapTypeConfig
	port    int
}

// NewServer wires the engine components into an HTTP server
func NewServer(st *store.Store, b *builder.Builder, banks *bank.Manager, configs []models.MapTypeConfig, port int) *Server {
	return &Server{store: st, builder: b, banks: banks, configs: configs, port: port}
}

// Start registers the routes and serves until the listener fails
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/vehicles", s.handleVehicles)
	mux.HandleFunc("/api/maptypes", s.handleMapTypes)
	mux.HandleFunc("/api/map", s.handleMapData)
	mux.HandleFunc("/api/versions", s.handleVersions)
	mux.HandleFunc("/api/compare", s.handleCompare)
	mux.HandleFunc("/api/build", s.handleBuild)
	mux.HandleFunc("/api/bank", s.handleBank)

	addr := fmt.Sprintf(":%d", s.port)

	pterm.DefaultHeader.WithFullWidth().
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Println("Map Viewer Started")

	pterm.Info.Printf("Listening on http://localhost%s\n", addr)
	pterm.Info.Println("Press Ctrl+C to stop the server")

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	content, err := templates.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(content)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.store.Vehicles()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error listing vehicles: %v", err), http.StatusInternalServerError)
		return
	}
	if vehicles == nil {
		vehicles = []string{}
	}
	writeJSON(w, vehicles)
}

func (s *Server) handleMapTypes(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Type     string  `json:"type"`
		Name     string  `json:"name"`
		Unit     string  `json:"unit"`
		MinValue float64 `json:"min_value"`
		MaxValue float64 `json:"max_value"`
		Is2D     bool    `json:"is_2d"`
	}
	out := make([]entry, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, entry{
			Type:     string(c.Type),
			Name:     c.Name,
			Unit:     c.Unit,
			MinValue: c.MinValue,
			MaxValue: c.MaxValue,
			Is2D:     c.Dimension == models.Dim2D,
		})
	}
	writeJSON(w, out)
}

func mapKey(r *http.Request) (string, models.MapType, models.BankID, error) {
	vehicle := r.URL.Query().Get("vehicle")
	mapType := r.URL.Query().Get("type")
	bankID := r.URL.Query().Get("bank")
	if bankID == "" {
		bankID = string(models.BankA)
	}
	if vehicle == "" || mapType == "" {
		return "", "", "", fmt.Errorf("vehicle and type parameters required")
	}
	return vehicle, models.MapType(mapType), models.BankID(bankID), nil
}

func (s *Server) handleMapData(w http.ResponseWriter, r *http.Request) {
	vehicle, mapType, bankID, err := mapKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var snap *store.Snapshot
	if version := r.URL.Query().Get("version"); version != "" {
		snap, err = s.store.LoadVersion(vehicle, mapType, bankID, version)
	} else {
		snap, err = s.store.Load(vehicle, mapType, bankID)
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Error loading map: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	vehicle, mapType, bankID, err := mapKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	versions, err := s.store.Versions(vehicle, mapType, bankID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error listing versions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, versions)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	vehicle, mapType, bankID, err := mapKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to parameters required", http.StatusBadRequest)
		return
	}

	result, err := compare.Versions(s.store, vehicle, mapType, bankID, from, to)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Error comparing versions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// BuildRequest is the body of a build call
type BuildRequest struct {
	Vehicle models.VehicleContext `json:"vehicle"`
	MapType string                `json:"map_type"`
	BankID  string                `json:"bank_id"`
	Options builder.Options       `json:"options"`
	Save    bool                  `json:"save"`
}

// BuildResponse reports the build outcome and any validation findings
type BuildResponse struct {
	State    string          `json:"state"`
	Snapshot *store.Snapshot `json:"snapshot,omitempty"`
	Issues   []string        `json:"issues,omitempty"`
	Error    string          `json:"error,omitempty"`
	CacheHit bool            `json:"cache_hit"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	cfg, err := models.MapTypeConfigFor(s.configs, models.MapType(req.MapType))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bankID := models.BankID(req.BankID)
	if bankID == "" {
		bankID = models.BankA
	}
	bankCfg, ok := s.banks.Bank(req.Vehicle.VehicleID, bankID)
	if !ok {
		http.Error(w, fmt.Sprintf("bank %s not configured for vehicle %s", bankID, req.Vehicle.VehicleID), http.StatusBadRequest)
		return
	}

	def := cfg.DefaultMap(req.Vehicle.VehicleID, bankID)
	build := s.builder.Run(builder.Context{
		Vehicle:    req.Vehicle,
		Bank:       bankCfg,
		TypeConfig: cfg,
		MapAxis:    def.MapAxis,
		RPMAxis:    def.RPMAxis,
		Options:    req.Options,
	})

	resp := BuildResponse{State: build.State.String(), CacheHit: build.CacheHit}
	for _, issue := range build.Issues {
		resp.Issues = append(resp.Issues, issue.String())
	}
	if build.Err != nil {
		resp.Error = build.Err.Error()
		writeJSON(w, resp)
		return
	}

	if req.Save && !validate.HasErrors(build.Issues) {
		head, err := s.store.Head(req.Vehicle.VehicleID, cfg.Type, bankID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Error reading head: %v", err), http.StatusInternalServerError)
			return
		}
		snap, err := s.store.Save(build.Map, head)
		if err != nil {
			http.Error(w, fmt.Sprintf("Error saving snapshot: %v", err), http.StatusConflict)
			return
		}
		resp.Snapshot = snap
	} else {
		resp.Snapshot = store.FromMap(build.Map)
	}
	writeJSON(w, resp)
}

func (s *Server) handleBank(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vehicle := r.URL.Query().Get("vehicle")
		bankID := models.BankID(r.URL.Query().Get("bank"))
		if bankID == "" {
			bankID = models.BankA
		}
		cfg, ok := s.banks.Bank(vehicle, bankID)
		if !ok {
			http.Error(w, "bank not configured", http.StatusNotFound)
			return
		}
		writeJSON(w, cfg)

	case http.MethodPost:
		var req struct {
			VehicleID string            `json:"vehicle_id"`
			Config    models.BankConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		var conflict *bank.ConflictError
		if err := s.banks.Configure(req.VehicleID, req.Config); err != nil {
			status := http.StatusBadRequest
			if errors.As(err, &conflict) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}
