package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tosih/fuelcalc/pkg/surface"
)

// hashedContext is the canonical form a build is memoized under: every input
// that can change the output, including the surface versions.
type hashedContext struct {
	Context      Context `json:"context"`
	MapType      string  `json:"map_type"`
	Unit         string  `json:"unit"`
	MinValue     float64 `json:"min_value"`
	MaxValue     float64 `json:"max_value"`
	VESurfaceVer int     `json:"ve_surface_version"`
	LambdaVer    int     `json:"lambda_surface_version"`
}

func contextHash(ctx Context, surfaces *surface.Store) (string, error) {
	veVer, lambdaVer := surfaces.Versions(ctx.Vehicle.VehicleID)
	h := hashedContext{
		Context:      ctx,
		MapType:      string(ctx.TypeConfig.Type),
		Unit:         ctx.TypeConfig.Unit,
		MinValue:     ctx.TypeConfig.MinValue,
		MaxValue:     ctx.TypeConfig.MaxValue,
		VESurfaceVer: veVer,
		LambdaVer:    lambdaVer,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
