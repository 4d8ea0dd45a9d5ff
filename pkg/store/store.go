// Package store persists map snapshots as versioned, immutable JSON files.
// Every save creates a new version carrying a pointer to its parent; a
// latest-pointer file per map key tracks the current head. Saves take a
// per-key advisory lock and reject stale parents, so at most one writer can
// advance a (vehicle, map type, bank) chain at a time.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tosih/fuelcalc/pkg/models"
)

// ErrNotFound is returned when no snapshot exists for a key or version
var ErrNotFound = errors.New("store: snapshot not found")

// ErrVersionConflict is returned when a save's expected parent is no longer
// the stored head, meaning another writer advanced the chain first.
var ErrVersionConflict = errors.New("store: version conflict")

// Metadata is the version block of a snapshot
type Metadata struct {
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	CalculatedWith string    `json:"calculated_with"`
	ParentVersion  string    `json:"parent_version,omitempty"`
}

// Snapshot is the wire format of one persisted map version
type Snapshot struct {
	VehicleID    string      `json:"vehicle_id"`
	MapType      string      `json:"map_type"`
	BankID       string      `json:"bank_id"`
	XSlots       int         `json:"x_slots"`
	YSlots       int         `json:"y_slots,omitempty"`
	RPMAxis      []float64   `json:"rpm_axis,omitempty"`
	MapAxis      []float64   `json:"map_axis"`
	RPMEnabled   []bool      `json:"rpm_enabled,omitempty"`
	MapEnabled   []bool      `json:"map_enabled"`
	ValuesMatrix [][]float64 `json:"values_matrix,omitempty"`
	Values       []float64   `json:"values,omitempty"`
	Unit         string      `json:"unit"`
	Metadata     Metadata    `json:"metadata"`
}

// Store is a filesystem-backed snapshot store rooted at one directory
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func key(mapType models.MapType, bank models.BankID) string {
	return fmt.Sprintf("%s_%s", mapType, bank)
}

func (s *Store) mapDir(vehicleID string, mapType models.MapType, bank models.BankID) string {
	return filepath.Join(s.root, vehicleID, key(mapType, bank))
}

// Save persists a new immutable version of the map. expectedParent must
// match the current head version ("" for a brand new chain) or the save is
// rejected with ErrVersionConflict. The assigned version and timestamp are
// written back into the map.
func (s *Store) Save(m *models.FuelMap, expectedParent string) (*Snapshot, error) {
	dir := s.mapDir(m.VehicleID, m.Type, m.Bank)
	lock := s.keyLock(filepath.Join(m.VehicleID, key(m.Type, m.Bank)))
	lock.Lock()
	defer lock.Unlock()

	head, err := s.readHead(dir)
	if err != nil {
		return nil, err
	}
	if head != expectedParent {
		return nil, fmt.Errorf("%w: head is %q, expected parent %q", ErrVersionConflict, head, expectedParent)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	m.Version = uuid.NewString()
	m.ParentVersion = head
	m.Timestamp = time.Now().UTC()

	snap := FromMap(m)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, m.Version+".json"), data, 0644); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "latest"), []byte(m.Version), 0644); err != nil {
		return nil, fmt.Errorf("updating head pointer: %w", err)
	}
	return snap, nil
}

func (s *Store) readHead(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "latest"))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading head pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Head returns the current head version for a map key ("" when none exists)
func (s *Store) Head(vehicleID string, mapType models.MapType, bank models.BankID) (string, error) {
	return s.readHead(s.mapDir(vehicleID, mapType, bank))
}

// Load returns the head snapshot for a map key
func (s *Store) Load(vehicleID string, mapType models.MapType, bank models.BankID) (*Snapshot, error) {
	dir := s.mapDir(vehicleID, mapType, bank)
	head, err := s.readHead(dir)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, fmt.Errorf("%w: %s/%s bank %s", ErrNotFound, vehicleID, mapType, bank)
	}
	return s.loadVersionFile(dir, head)
}

// LoadVersion returns one specific snapshot version
func (s *Store) LoadVersion(vehicleID string, mapType models.MapType, bank models.BankID, version string) (*Snapshot, error) {
	return s.loadVersionFile(s.mapDir(vehicleID, mapType, bank), version)
}

func (s *Store) loadVersionFile(dir, version string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, version+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", version, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", version, err)
	}
	if err := snap.checkShape(); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", version, err)
	}
	return &snap, nil
}

// Versions lists the metadata of every stored version of a map, walking the
// parent chain from the head backwards.
func (s *Store) Versions(vehicleID string, mapType models.MapType, bank models.BankID) ([]Metadata, error) {
	dir := s.mapDir(vehicleID, mapType, bank)
	head, err := s.readHead(dir)
	if err != nil {
		return nil, err
	}
	var out []Metadata
	for v := head; v != ""; {
		snap, err := s.loadVersionFile(dir, v)
		if err != nil {
			return out, err
		}
		out = append(out, snap.Metadata)
		v = snap.Metadata.ParentVersion
	}
	return out, nil
}

// DeleteVehicle removes every snapshot belonging to a vehicle
func (s *Store) DeleteVehicle(vehicleID string) error {
	if vehicleID == "" {
		return fmt.Errorf("store: empty vehicle id")
	}
	return os.RemoveAll(filepath.Join(s.root, vehicleID))
}

// Vehicles lists every vehicle with at least one stored snapshot
func (s *Store) Vehicles() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// MapKeys lists the (map type, bank) directories present for a vehicle
func (s *Store) MapKeys(vehicleID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, vehicleID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (sn *Snapshot) checkShape() error {
	if len(sn.MapAxis) != sn.XSlots || len(sn.MapEnabled) != sn.XSlots {
		return fmt.Errorf("map axis arrays do not match x_slots=%d", sn.XSlots)
	}
	if sn.YSlots > 0 {
		if len(sn.RPMAxis) != sn.YSlots || len(sn.RPMEnabled) != sn.YSlots {
			return fmt.Errorf("rpm axis arrays do not match y_slots=%d", sn.YSlots)
		}
		if len(sn.ValuesMatrix) != sn.XSlots {
			return fmt.Errorf("values_matrix has %d rows for x_slots=%d", len(sn.ValuesMatrix), sn.XSlots)
		}
		for i, row := range sn.ValuesMatrix {
			if len(row) != sn.YSlots {
				return fmt.Errorf("values_matrix row %d has %d columns for y_slots=%d", i, len(row), sn.YSlots)
			}
		}
		return nil
	}
	if len(sn.Values) != sn.XSlots {
		return fmt.Errorf("values has %d entries for x_slots=%d", len(sn.Values), sn.XSlots)
	}
	return nil
}

// FromMap converts a FuelMap into its snapshot wire form
func FromMap(m *models.FuelMap) *Snapshot {
	snap := &Snapshot{
		VehicleID:  m.VehicleID,
		MapType:    string(m.Type),
		BankID:     string(m.Bank),
		XSlots:     m.MapAxis.Len(),
		MapAxis:    append([]float64(nil), m.MapAxis.Values...),
		MapEnabled: append([]bool(nil), m.MapAxis.Enabled...),
		Unit:       m.Unit,
		Metadata: Metadata{
			Timestamp:      m.Timestamp,
			Version:        m.Version,
			CalculatedWith: m.CalculatedWith,
			ParentVersion:  m.ParentVersion,
		},
	}
	if m.Dimension == models.Dim2D {
		snap.YSlots = m.RPMAxis.Len()
		snap.RPMAxis = append([]float64(nil), m.RPMAxis.Values...)
		snap.RPMEnabled = append([]bool(nil), m.RPMAxis.Enabled...)
		snap.ValuesMatrix = make([][]float64, len(m.Matrix))
		for i, row := range m.Matrix {
			snap.ValuesMatrix[i] = append([]float64(nil), row...)
		}
	} else {
		snap.Values = append([]float64(nil), m.Line...)
	}
	return snap
}

// ToMap converts a snapshot back into a FuelMap
func (sn *Snapshot) ToMap() (*models.FuelMap, error) {
	if err := sn.checkShape(); err != nil {
		return nil, err
	}
	m := &models.FuelMap{
		VehicleID: sn.VehicleID,
		Type:      models.MapType(sn.MapType),
		Bank:      models.BankID(sn.BankID),
		Unit:      sn.Unit,
		MapAxis: models.AxisDefinition{
			Kind:    models.AxisMAP,
			Unit:    "bar",
			Values:  append([]float64(nil), sn.MapAxis...),
			Enabled: append([]bool(nil), sn.MapEnabled...),
		},
		Version:        sn.Metadata.Version,
		ParentVersion:  sn.Metadata.ParentVersion,
		Timestamp:      sn.Metadata.Timestamp,
		CalculatedWith: sn.Metadata.CalculatedWith,
	}
	if sn.YSlots > 0 {
		m.Dimension = models.Dim2D
		m.RPMAxis = models.AxisDefinition{
			Kind:    models.AxisRPM,
			Unit:    "rpm",
			Values:  append([]float64(nil), sn.RPMAxis...),
			Enabled: append([]bool(nil), sn.RPMEnabled...),
		}
		m.Matrix = make([][]float64, len(sn.ValuesMatrix))
		m.Saturated = make([][]bool, len(sn.ValuesMatrix))
		for i, row := range sn.ValuesMatrix {
			m.Matrix[i] = append([]float64(nil), row...)
			m.Saturated[i] = make([]bool, len(row))
		}
	} else {
		m.Dimension = models.Dim1D
		m.Line = append([]float64(nil), sn.Values...)
		m.SaturatedLine = make([]bool, len(sn.Values))
	}
	return m, nil
}
