package analysis

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/util"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Reltol != 1e-3 || cfg.Abstol != 1e-12 || cfg.Vntol != 1e-6 {
		t.Fatalf("tolerance defaults wrong: %+v", cfg)
	}
	if cfg.Trtol != 7.0 || cfg.Itl1 != 100 || cfg.Itl4 != 10 {
		t.Fatalf("iteration defaults wrong: %+v", cfg)
	}
	if cfg.Gmin != 1e-12 || cfg.Temperature != 300.15 {
		t.Fatalf("gmin/temperature defaults wrong: %+v", cfg)
	}
}

func TestConfigRejectsUnknownOption(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.Set("retlol", 1e-3)
	if err == nil {
		t.Fatal("unknown option must be reported")
	}
	if !errors.Is(err, simerr.ErrUnknownOption) {
		t.Fatalf("error type: %v", err)
	}
}

func TestConfigSetKnownOptions(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.ApplyOptions(map[string]float64{
		"reltol": 1e-4,
		"itl1":   200,
		"temp":   350,
	}); err != nil {
		t.Fatal(err)
	}
	if cfg.Reltol != 1e-4 || cfg.Itl1 != 200 || cfg.Temperature != 350 {
		t.Fatalf("options not applied: %+v", cfg)
	}
}

func TestConfigMethod(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.SetMethod("gear"); err != nil {
		t.Fatal(err)
	}
	if cfg.Method != util.GearMethod {
		t.Fatal("gear not selected")
	}
	if err := cfg.SetMethod("simpson"); err == nil {
		t.Fatal("unknown method accepted")
	}

	if err := cfg.SetMethod("trapezoidal"); err != nil {
		t.Fatal(err)
	}
	if cfg.Order > 2 {
		t.Fatal("trapezoidal order must clamp to 2")
	}
}
