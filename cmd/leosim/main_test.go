package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/leo-simulator/internal/sim"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestProfilesListsBuiltins(t *testing.T) {
	out, err := runCLI(t, "profiles")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	for _, want := range []string{"NAME", "starlink", "telesat", "telesat-user", "isl"} {
		if !strings.Contains(out, want) {
			t.Fatalf("profiles output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateExampleScenario(t *testing.T) {
	out, err := runCLI(t, "validate", filepath.Join("..", "..", "configs", "scenario.yaml"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok:") || !strings.Contains(out, "45 satellites") {
		t.Fatalf("unexpected validate output: %s", out)
	}
}

func TestValidateRejectsBadScenario(t *testing.T) {
	path := writeScenario(t, "user_links:\n  - profile: oneweb\n    class: ut-return\n")
	if _, err := runCLI(t, "validate", path); err == nil || !strings.Contains(err.Error(), "unknown link profile") {
		t.Fatalf("validate error = %v, want unknown link profile", err)
	}
	if _, err := runCLI(t, "validate"); err == nil {
		t.Fatalf("validate without files should fail")
	}
}

func TestValidatePrintSchema(t *testing.T) {
	out, err := runCLI(t, "validate", "--print-schema")
	if err != nil {
		t.Fatalf("validate --print-schema: %v", err)
	}
	if !strings.Contains(out, "#Scenario") {
		t.Fatalf("schema output missing #Scenario:\n%s", out)
	}
}

const cliScenario = `
run:
  duration: 5s
constellations:
  - name: shell
    altitude_km: 550
    inclination_deg: 53
    planes: 1
    satellites_per_plane: 10
isl:
  enabled: true
probes:
  - src: shell-0-0
    dst: shell-0-1
    interval: 1s
    max_packets: 3
`

func TestSimulateJSONSummaryAndTrace(t *testing.T) {
	path := writeScenario(t, cliScenario)
	tracePath := filepath.Join(t.TempDir(), "out", "trace.csv")

	out, err := runCLI(t, "simulate", "--config", path, "--trace", tracePath, "--json")
	if err != nil {
		t.Fatalf("simulate: %v\n%s", err, out)
	}
	var sum sim.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if sum.Satellites != 10 || sum.Channels != 1 || sum.Deliveries != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Probes) != 1 || sum.Probes[0].Received != 3 {
		t.Fatalf("probe summary = %+v", sum.Probes)
	}

	f, err := os.Open(tracePath)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read trace csv: %v", err)
	}
	if len(rows) != 1+6 || rows[0][0] != "kind" {
		t.Fatalf("trace rows = %d, want header + 3 txrx + 3 probe", len(rows))
	}
}

func TestSimulateTextSummaryWithDurationOverride(t *testing.T) {
	path := writeScenario(t, cliScenario)
	out, err := runCLI(t, "simulate", "--config", path, "--duration", "2s")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, want := range []string{"2s simulated", "10 satellites", "probe shell-0-0->shell-0-1: sent=3 received=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateRejectsInvalidOverride(t *testing.T) {
	path := writeScenario(t, cliScenario)
	if _, err := runCLI(t, "simulate", "--config", path, "--duration", "-1s"); err == nil {
		t.Fatalf("negative duration override should fail")
	}
}
