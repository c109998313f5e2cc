package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresInputPort(t *testing.T) {
	path := writeTempConfig(t, "input: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "input.port is required")
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeTempConfig(t, "input: [\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "input:\n  port: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Input.Baud != 115200 {
		t.Fatalf("input.baud=%d want 115200", cfg.Input.Baud)
	}
	if cfg.Input.MaxRecordBytes != 4096 {
		t.Fatalf("input.max_record_bytes=%d want 4096", cfg.Input.MaxRecordBytes)
	}
	if *cfg.Limits.AltitudeMinM != -1000 || *cfg.Limits.AltitudeMaxM != 50000 {
		t.Fatalf("altitude limits=%v..%v", *cfg.Limits.AltitudeMinM, *cfg.Limits.AltitudeMaxM)
	}
	if *cfg.Limits.TemperatureMinC != -50 || *cfg.Limits.TemperatureMaxC != 85 {
		t.Fatalf("temperature limits=%v..%v", *cfg.Limits.TemperatureMinC, *cfg.Limits.TemperatureMaxC)
	}
	if cfg.Log.MaxSizeMB != 20 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 14 || cfg.Log.BufferLines != 2000 {
		t.Fatalf("log defaults=%+v", cfg.Log)
	}
	if cfg.Output.Enable {
		t.Fatalf("output must default to disabled")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `
input:
  port: /dev/ttyUSB0
  baud: 57600
output:
  enable: true
  port: /dev/ttyUSB1
packet:
  team_id: 84
limits:
  altitude_max_m: 12000
mirror:
  enable: true
  dest: 127.0.0.1:4000
web:
  listen: ":8080"
status_led:
  enable: true
  pin: 17
log:
  debug: true
  path: /var/log/rocketlink.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Input.Baud != 57600 {
		t.Fatalf("input.baud=%d", cfg.Input.Baud)
	}
	if cfg.Output.Baud != 19200 {
		t.Fatalf("output.baud=%d want 19200", cfg.Output.Baud)
	}
	if cfg.Packet.TeamID != 84 {
		t.Fatalf("team_id=%d", cfg.Packet.TeamID)
	}
	if *cfg.Limits.AltitudeMaxM != 12000 || *cfg.Limits.AltitudeMinM != -1000 {
		t.Fatalf("altitude limits=%v..%v", *cfg.Limits.AltitudeMinM, *cfg.Limits.AltitudeMaxM)
	}
	if !cfg.Mirror.Enable || cfg.Mirror.Dest != "127.0.0.1:4000" {
		t.Fatalf("mirror=%+v", cfg.Mirror)
	}
	if !cfg.StatusLED.Enable || cfg.StatusLED.Pin != 17 {
		t.Fatalf("status_led=%+v", cfg.StatusLED)
	}
	if !cfg.Log.Debug || cfg.Log.Path == "" {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "SamePortBothWays",
			body: "input:\n  port: /dev/ttyUSB0\noutput:\n  enable: true\n  port: /dev/ttyUSB0\n",
			want: "input.port and output.port must differ",
		},
		{
			name: "OutputNeedsPort",
			body: "input:\n  port: /dev/ttyUSB0\noutput:\n  enable: true\n",
			want: "output.port is required when output.enable is true",
		},
		{
			name: "TeamIDRange",
			body: "input:\n  port: /dev/ttyUSB0\npacket:\n  team_id: 300\n",
			want: "packet.team_id must be in [0,255]",
		},
		{
			name: "AltitudeWindow",
			body: "input:\n  port: /dev/ttyUSB0\nlimits:\n  altitude_min_m: 100\n  altitude_max_m: 100\n",
			want: "limits.altitude_min_m must be < limits.altitude_max_m",
		},
		{
			name: "TemperatureWindow",
			body: "input:\n  port: /dev/ttyUSB0\nlimits:\n  temperature_min_c: 90\n",
			want: "limits.temperature_min_c must be < limits.temperature_max_c",
		},
		{
			name: "MirrorNeedsDest",
			body: "input:\n  port: /dev/ttyUSB0\nmirror:\n  enable: true\n",
			want: "mirror.dest is required when mirror.enable is true",
		},
		{
			name: "LEDNeedsPin",
			body: "input:\n  port: /dev/ttyUSB0\nstatus_led:\n  enable: true\n",
			want: "status_led.pin must be > 0 when status_led.enable is true",
		},
		{
			name: "NegativeBaud",
			body: "input:\n  port: /dev/ttyUSB0\n  baud: -1\n",
			want: "input.baud must be > 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestDefaultAndValidate_Nil(t *testing.T) {
	requireErrEq(t, DefaultAndValidate(nil), "config is nil")
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "rocketlink.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Output.Enable || cfg.Packet.TeamID != 84 || cfg.Web.Listen != ":8080" {
		t.Fatalf("cfg=%+v", cfg)
	}
}
