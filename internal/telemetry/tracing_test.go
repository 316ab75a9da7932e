package telemetry

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-assessment/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "no endpoint", cfg: config.Config{OTELEnabled: true}},
		{name: "switched off", cfg: config.Config{OTELEnabled: false, OTELEndpoint: "http://localhost:4318"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), &tt.cfg)
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}
