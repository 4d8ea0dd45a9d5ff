package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/tosih/fuelcalc/pkg/bank"
	"github.com/tosih/fuelcalc/pkg/builder"
	"github.com/tosih/fuelcalc/pkg/compare"
	"github.com/tosih/fuelcalc/pkg/export"
	"github.com/tosih/fuelcalc/pkg/models"
	"github.com/tosih/fuelcalc/pkg/renderer"
	"github.com/tosih/fuelcalc/pkg/store"
	"github.com/tosih/fuelcalc/pkg/surface"
	"github.com/tosih/fuelcalc/pkg/validate"
	"github.com/tosih/fuelcalc/pkg/web"
)

func main() {
	cmd := flag.String("cmd", "list", "Command: list, build, show, validate, export, clipboard, compare, duplicate, sync, delete, serve")
	root := flag.String("root", "maps", "Snapshot root directory")
	configFile := flag.String("config", "", "Optional map-type configuration JSON file")
	vehicle := flag.String("vehicle", "demo", "Vehicle identifier")
	mapType := flag.String("map", "injection_2d", "Map type")
	bankID := flag.String("bank", "A", "Bank: A or B")
	display := flag.String("display", "values", "Display mode: values, symbols, heatmap")
	port := flag.Int("port", 8080, "Web server port")

	dispL := flag.Float64("disp", 2.0, "Engine displacement in liters")
	cylinders := flag.Int("cyl", 4, "Cylinder count")
	afr := flag.Float64("afr", 14.7, "Stoichiometric AFR for the fuel")
	flow := flag.Float64("flow", 330, "Injector flow in cc/min at 3 bar")
	injectors := flag.Int("injectors", 4, "Injector count per bank")
	deadTime := flag.Float64("deadtime", 1.0, "Injector dead time at 13V in ms")
	regulator := flag.String("regulator", "1:1", "Regulator type: 1:1 or fixed")
	basePressure := flag.Float64("base-pressure", 3.0, "Regulator base pressure in bar")
	outputs := flag.String("outputs", "1,2,3,4", "Comma-separated output pins for the bank")

	closedLoop := flag.Bool("closed-loop", false, "Use closed-loop per-cell lambda targets")
	globalFactor := flag.Float64("global-factor", 1.0, "Open-loop 2D global factor")
	delta := flag.Bool("delta", false, "1D delta mode (subtract the MAP=0 value)")
	nearest := flag.Bool("nearest", false, "Use nearest-neighbor surface sampling instead of bilinear")
	save := flag.Bool("save", true, "Persist the built map as a new version")

	exportDir := flag.String("export-dir", "exports", "CSV export directory")
	fromVer := flag.String("from", "", "Comparison: older version id")
	toVer := flag.String("to", "", "Comparison: newer version id")
	flag.Parse()

	configs := models.MapTypeConfigs
	if *configFile != "" {
		loaded, divergences, err := models.LoadMapTypeConfigs(*configFile)
		if err != nil {
			pterm.Error.Printf("Failed to load map type config: %v\n", err)
			os.Exit(1)
		}
		configs = loaded
		for _, issue := range validate.DivergenceIssues(divergences) {
			pterm.Warning.Println(issue.String())
		}
	}

	st := store.NewStore(*root)
	surfaces := surface.NewStore()
	b := builder.New(surfaces)
	banks := bank.NewManager(st, configs)

	bankCfg := models.BankConfig{
		ID:              models.BankID(*bankID),
		Enabled:         true,
		Mode:            models.ModeSequential,
		Outputs:         parsePins(*outputs),
		InjectorFlowCC:  *flow,
		InjectorCount:   *injectors,
		DeadTime13V:     *deadTime,
		Regulator:       models.RegulatorType(*regulator),
		BasePressureBar: *basePressure,
	}
	if err := banks.Configure(*vehicle, bankCfg); err != nil {
		pterm.Error.Printf("Bank configuration rejected: %v\n", err)
		os.Exit(1)
	}

	ctx := models.VehicleContext{
		VehicleID:     *vehicle,
		DisplacementL: *dispL,
		Cylinders:     *cylinders,
		AFRStoich:     *afr,
		BatteryV:      13.0,
	}

	switch *cmd {
	case "list":
		renderer.ListMapTypes(configs)

	case "build":
		runBuild(b, st, configs, ctx, bankCfg, *mapType, buildOptions(*closedLoop, *globalFactor, *delta, *nearest), *save, *display)

	case "show":
		m := loadMap(st, *vehicle, models.MapType(*mapType), models.BankID(*bankID))
		renderer.RenderMap(m, *display)

	case "validate":
		m := loadMap(st, *vehicle, models.MapType(*mapType), models.BankID(*bankID))
		cfg, err := models.MapTypeConfigFor(configs, m.Type)
		if err != nil {
			pterm.Error.Println(err.Error())
			os.Exit(1)
		}
		issues := validate.CheckMap(m, cfg, 0)
		for _, issue := range issues {
			if issue.Severity == validate.SeverityError {
				pterm.Error.Println(issue.String())
			} else {
				pterm.Warning.Println(issue.String())
			}
		}
		if validate.HasErrors(issues) {
			os.Exit(1)
		}
		if len(issues) == 0 {
			pterm.Success.Printf("%s bank %s passed all checks\n", *mapType, *bankID)
		}

	case "export":
		m := loadMap(st, *vehicle, models.MapType(*mapType), models.BankID(*bankID))
		if err := export.ExportAll([]*models.FuelMap{m}, *exportDir); err != nil {
			pterm.Error.Printf("Export failed: %v\n", err)
			os.Exit(1)
		}

	case "clipboard":
		m := loadMap(st, *vehicle, models.MapType(*mapType), models.BankID(*bankID))
		fmt.Print(export.Clipboard(m))

	case "compare":
		if *fromVer == "" || *toVer == "" {
			pterm.Error.Println("compare requires -from and -to version ids")
			os.Exit(1)
		}
		result, err := compare.Versions(st, *vehicle, models.MapType(*mapType), models.BankID(*bankID), *fromVer, *toVer)
		if err != nil {
			pterm.Error.Printf("Comparison failed: %v\n", err)
			os.Exit(1)
		}
		cfg, _ := models.MapTypeConfigFor(configs, models.MapType(*mapType))
		compare.Display(result, cfg.Unit)

	case "duplicate":
		types := make([]models.MapType, 0, len(configs))
		for _, c := range configs {
			types = append(types, c.Type)
		}
		if err := banks.DuplicateMaps(*vehicle, types); err != nil {
			pterm.Error.Printf("Duplication failed: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Bank B maps ensured for %s\n", *vehicle)

	case "sync":
		if err := banks.SyncAToB(*vehicle, models.MapType(*mapType)); err != nil {
			pterm.Error.Printf("Sync failed: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Bank A %s map synced to bank B\n", *mapType)

	case "delete":
		if err := banks.PurgeVehicle(*vehicle, surfaces); err != nil {
			pterm.Error.Printf("Delete failed: %v\n", err)
			os.Exit(1)
		}
		b.InvalidateCache()
		pterm.Success.Printf("Vehicle %s deleted\n", *vehicle)

	case "serve":
		server := web.NewServer(st, b, banks, configs, *port)
		if err := server.Start(); err != nil {
			pterm.Error.Printf("Server stopped: %v\n", err)
			os.Exit(1)
		}

	default:
		pterm.Error.Printf("Unknown command: %s\n", *cmd)
		os.Exit(1)
	}
}

func buildOptions(closedLoop bool, globalFactor float64, delta, nearest bool) builder.Options {
	opts := builder.Options{
		ClosedLoop:   closedLoop,
		GlobalFactor: globalFactor,
		DeltaMode:    delta,
	}
	if nearest {
		opts.SampleMode = surface.SampleNearest
	}
	return opts
}

func runBuild(b *builder.Builder, st *store.Store, configs []models.MapTypeConfig,
	ctx models.VehicleContext, bankCfg models.BankConfig, mapType string,
	opts builder.Options, save bool, display string) {

	cfg, err := models.MapTypeConfigFor(configs, models.MapType(mapType))
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}

	def := cfg.DefaultMap(ctx.VehicleID, bankCfg.ID)
	build := b.Run(builder.Context{
		Vehicle:    ctx,
		Bank:       bankCfg,
		TypeConfig: cfg,
		MapAxis:    def.MapAxis,
		RPMAxis:    def.RPMAxis,
		Options:    opts,
	})

	for _, issue := range build.Issues {
		if issue.Severity == validate.SeverityError {
			pterm.Error.Println(issue.String())
		} else {
			pterm.Warning.Println(issue.String())
		}
	}
	if build.Err != nil {
		pterm.Error.Printf("Build failed: %v\n", build.Err)
		os.Exit(1)
	}

	renderer.RenderMap(build.Map, display)

	if save {
		head, err := st.Head(ctx.VehicleID, cfg.Type, bankCfg.ID)
		if err != nil {
			pterm.Error.Printf("Failed to read head version: %v\n", err)
			os.Exit(1)
		}
		snap, err := st.Save(build.Map, head)
		if err != nil {
			pterm.Error.Printf("Failed to save snapshot: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Saved version %s\n", snap.Metadata.Version)
	}
}

func loadMap(st *store.Store, vehicle string, mapType models.MapType, bankID models.BankID) *models.FuelMap {
	snap, err := st.Load(vehicle, mapType, bankID)
	if err != nil {
		pterm.Error.Printf("Failed to load map: %v\n", err)
		os.Exit(1)
	}
	m, err := snap.ToMap()
	if err != nil {
		pterm.Error.Printf("Failed to decode map: %v\n", err)
		os.Exit(1)
	}
	return m
}

func parsePins(s string) []int {
	var pins []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if pin, err := strconv.Atoi(part); err == nil {
			pins = append(pins, pin)
		}
	}
	return pins
}
