package device

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func stubGPUs(t *testing.T, gpus []Device, err error) {
	t.Helper()
	prev := probeGPUs
	probeGPUs = func() ([]Device, error) { return gpus, err }
	t.Cleanup(func() { probeGPUs = prev })
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"cpu", CPU, false},
		{"", CPU, false},
		{" GPU ", GPU, false},
		{"tpu", CPU, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseKind(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestListAlwaysHasCPU(t *testing.T) {
	stubGPUs(t, nil, errors.New("no driver"))
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	devs := List(log)
	if len(devs.CPU) != 1 {
		t.Fatalf("expected one CPU, got %d", len(devs.CPU))
	}
	if devs.CPU[0].Cores <= 0 {
		t.Errorf("expected a positive core count, got %d", devs.CPU[0].Cores)
	}
	if len(devs.GPU) != 0 {
		t.Errorf("expected no GPUs, got %d", len(devs.GPU))
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "GPU adapter probe failed" {
			found = true
		}
	}
	if !found {
		t.Error("probe failure was not logged")
	}
}

func TestSelectFallsBackToCPU(t *testing.T) {
	stubGPUs(t, nil, nil)
	log, hook := test.NewNullLogger()

	d, err := Select("gpu", 0, log)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if d.Kind != CPU {
		t.Errorf("expected CPU fallback, got %s", d)
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Error("expected a warning about the fallback")
	}
}

func TestSelectGPU(t *testing.T) {
	stubGPUs(t, []Device{
		{Kind: GPU, Index: 0, Name: "first"},
		{Kind: GPU, Index: 1, Name: "second"},
	}, nil)
	log, _ := test.NewNullLogger()

	d, err := Select("gpu", 1, log)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if d.Kind != GPU || d.Name != "second" {
		t.Errorf("unexpected device %s", d)
	}

	d, err = Select("gpu", 5, log)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if d.Kind != GPU || d.Index != 0 {
		t.Errorf("expected gpu:0 fallback, got %s", d)
	}

	if _, err := Select("quantum", 0, log); err == nil {
		t.Error("expected an error for an unknown device name")
	}
}

func TestVendorName(t *testing.T) {
	if got := vendorName(" NVIDIA ", 0x10de); got != "NVIDIA" {
		t.Errorf("unexpected vendor %q", got)
	}
	if got := vendorName("", 0x10de); got != "0x10de" {
		t.Errorf("unexpected vendor %q", got)
	}
}
