// Package bank manages the A/B injector bank topology: output pin
// assignment, conflict detection, and keeping bank B's maps in step with
// bank A through duplication and sync.
package bank

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/store"
	"github.com/tosih/fuelcalc/pkg/surface"
)

// ConflictError reports output pins claimed by both banks
type ConflictError struct {
	Pins []int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("bank output conflict on pins %v", e.Pins)
}

// Manager holds per-vehicle bank configuration and orchestrates map
// duplication between banks.
type Manager struct {
	store   *store.Store
	configs []models.MapTypeConfig

	mu    sync.Mutex
	banks map[string]map[models.BankID]models.BankConfig
}

// NewManager creates a manager over a snapshot store and a map-type table
func NewManager(st *store.Store, configs []models.MapTypeConfig) *Manager {
	return &Manager{
		store:   st,
		configs: configs,
		banks:   make(map[string]map[models.BankID]models.BankConfig),
	}
}

// Configure validates and commits one bank's configuration. Bank A can
// never be disabled; when both banks are enabled their output pin sets must
// be disjoint, whichever order they were configured in.
func (m *Manager) Configure(vehicleID string, cfg models.BankConfig) error {
	if cfg.ID != models.BankA && cfg.ID != models.BankB {
		return fmt.Errorf("unknown bank id %q", cfg.ID)
	}
	if cfg.ID == models.BankA && !cfg.Enabled {
		return fmt.Errorf("bank A cannot be disabled")
	}
	if cfg.Enabled {
		if cfg.InjectorCount <= 0 {
			return fmt.Errorf("bank %s: injector count must be positive", cfg.ID)
		}
		if cfg.InjectorFlowCC <= 0 {
			return fmt.Errorf("bank %s: injector flow must be positive", cfg.ID)
		}
		if cfg.BasePressureBar <= 0 {
			return fmt.Errorf("bank %s: base pressure must be positive", cfg.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	other := models.BankB
	if cfg.ID == models.BankB {
		other = models.BankA
	}
	if existing, ok := m.banks[vehicleID][other]; ok && existing.Enabled && cfg.Enabled {
		if pins := overlap(cfg.Outputs, existing.Outputs); len(pins) > 0 {
			return &ConflictError{Pins: pins}
		}
	}

	if m.banks[vehicleID] == nil {
		m.banks[vehicleID] = make(map[models.BankID]models.BankConfig)
	}
	m.banks[vehicleID][cfg.ID] = cfg.Clone()
	return nil
}

// Bank returns one bank's configuration
func (m *Manager) Bank(vehicleID string, id models.BankID) (models.BankConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.banks[vehicleID][id]
	return cfg.Clone(), ok
}

// DeleteVehicle drops the bank configuration of a vehicle
func (m *Manager) DeleteVehicle(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.banks, vehicleID)
}

// PurgeVehicle removes every trace of a vehicle in one call: stored map
// snapshots, VE and lambda surfaces, and the bank configuration.
func (m *Manager) PurgeVehicle(vehicleID string, surfaces *surface.Store) error {
	if err := m.store.DeleteVehicle(vehicleID); err != nil {
		return fmt.Errorf("deleting snapshots for %s: %w", vehicleID, err)
	}
	if surfaces != nil {
		surfaces.DeleteVehicle(vehicleID)
	}
	m.DeleteVehicle(vehicleID)
	return nil
}

func overlap(a, b []int) []int {
	set := make(map[int]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	var pins []int
	for _, p := range b {
		if set[p] {
			pins = append(pins, p)
		}
	}
	sort.Ints(pins)
	return pins
}

// DuplicateMaps ensures each listed map type has a bank A instance
// (creating the lazy default when absent) and clones it into a bank B
// instance when B has none, axis configuration and values included.
func (m *Manager) DuplicateMaps(vehicleID string, mapTypes []models.MapType) error {
	for _, t := range mapTypes {
		cfg, err := models.MapTypeConfigFor(m.configs, t)
		if err != nil {
			return err
		}

		snapA, err := m.store.Load(vehicleID, t, models.BankA)
		if errors.Is(err, store.ErrNotFound) {
			def := cfg.DefaultMap(vehicleID, models.BankA)
			def.CalculatedWith = "default"
			if snapA, err = m.store.Save(def, ""); err != nil {
				return fmt.Errorf("creating default %s map for bank A: %w", t, err)
			}
		} else if err != nil {
			return err
		}

		headB, err := m.store.Head(vehicleID, t, models.BankB)
		if err != nil {
			return err
		}
		if headB != "" {
			continue // bank B already has an instance
		}

		mapA, err := snapA.ToMap()
		if err != nil {
			return fmt.Errorf("decoding bank A %s map: %w", t, err)
		}
		mapB := mapA.Clone()
		mapB.Bank = models.BankB
		if _, err := m.store.Save(mapB, ""); err != nil {
			return fmt.Errorf("cloning %s map to bank B: %w", t, err)
		}
	}
	return nil
}

// SyncAToB overwrites bank B's map with bank A's current head: axis enable
// state and the full values matrix. The overwrite is a new version on B's
// chain, so the previous B state remains recoverable.
func (m *Manager) SyncAToB(vehicleID string, mapType models.MapType) error {
	snapA, err := m.store.Load(vehicleID, mapType, models.BankA)
	if err != nil {
		return fmt.Errorf("loading bank A %s map: %w", mapType, err)
	}
	mapA, err := snapA.ToMap()
	if err != nil {
		return fmt.Errorf("decoding bank A %s map: %w", mapType, err)
	}

	headB, err := m.store.Head(vehicleID, mapType, models.BankB)
	if err != nil {
		return err
	}

	mapB := mapA.Clone()
	mapB.Bank = models.BankB
	if _, err := m.store.Save(mapB, headB); err != nil {
		return fmt.Errorf("syncing %s map to bank B: %w", mapType, err)
	}
	return nil
}

// TotalFlow returns the combined rated flow of a bank in cc/min
func TotalFlow(cfg models.BankConfig) float64 {
	return cfg.InjectorFlowCC * float64(cfg.InjectorCount)
}

// DutyCycle returns the injector duty in percent for a pulse width at an
// engine speed, clamped to 100. Sequential banks fire once per engine cycle
// (720°), the other modes once per revolution.
func DutyCycle(pwMs, rpm float64, mode models.InjectionMode) float64 {
	if rpm <= 0 || pwMs <= 0 {
		return 0
	}
	availableMs := 60000.0 / rpm
	if mode == models.ModeSequential {
		availableMs *= 2
	}
	duty := pwMs / availableMs * 100
	if duty > 100 {
		return 100
	}
	return duty
}
