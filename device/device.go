// Package device enumerates the compute devices visible to the process and
// resolves a configured device name to one of them.
//
// Training always runs on the CPU math path; a selected GPU adapter is
// recorded and logged so runs can be attributed to the hardware they were
// configured for.
package device

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/openfluke/webgpu/wgpu"
	"github.com/sirupsen/logrus"
)

// Kind is the class of a compute device.
type Kind int

const (
	CPU Kind = iota
	GPU
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts "cpu" and "gpu" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return CPU, fmt.Errorf("unknown device %q", s)
}

// Device describes one compute device.
type Device struct {
	Kind        Kind
	Index       int
	Name        string
	Vendor      string
	Backend     string // GPU only
	AdapterType string // GPU only
	Cores       int    // CPU only, logical cores
	Features    []string
}

func (d Device) String() string {
	if d.Kind == CPU {
		return fmt.Sprintf("cpu:%d %s (%d cores)", d.Index, d.Name, d.Cores)
	}
	return fmt.Sprintf("gpu:%d %s (%s, %s)", d.Index, d.Name, d.Vendor, d.Backend)
}

// Devices groups the visible devices by kind.
type Devices struct {
	CPU []Device
	GPU []Device
}

// probeGPUs is replaced in tests.
var probeGPUs = adapters

// List returns every visible device. The CPU list always has one entry.
func List(log logrus.FieldLogger) Devices {
	devs := Devices{CPU: []Device{describeCPU()}}
	gpus, err := probeGPUs()
	if err != nil {
		log.WithError(err).Debug("GPU adapter probe failed")
	}
	devs.GPU = gpus
	for _, d := range devs.CPU {
		log.WithField("device", d.String()).Debug("found device")
	}
	for _, d := range devs.GPU {
		log.WithField("device", d.String()).Debug("found device")
	}
	return devs
}

// Select resolves a device name ("cpu" or "gpu") and index. A GPU request
// that cannot be satisfied falls back to the CPU with a warning; an unknown
// name is an error.
func Select(name string, num int, log logrus.FieldLogger) (Device, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return Device{}, err
	}
	if kind == CPU && num == 0 {
		return describeCPU(), nil
	}
	devs := List(log)

	if kind == GPU {
		if num >= 0 && num < len(devs.GPU) {
			return devs.GPU[num], nil
		}
		if len(devs.GPU) > 0 {
			log.WithField("requested", fmt.Sprintf("gpu:%d", num)).Warn("GPU not found, using gpu:0")
			return devs.GPU[0], nil
		}
		log.WithFields(logrus.Fields{
			"requested": fmt.Sprintf("gpu:%d", num),
			"available": len(devs.GPU),
		}).Warn("GPU not available, falling back to CPU")
	} else if num != 0 {
		log.WithField("requested", fmt.Sprintf("cpu:%d", num)).Warn("only cpu:0 exists, using it")
	}
	return devs.CPU[0], nil
}

func describeCPU() Device {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = runtime.GOARCH
	}
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}

	var feats []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			feats = append(feats, f.String())
		}
	}

	return Device{
		Kind:     CPU,
		Name:     name,
		Vendor:   cpuid.CPU.VendorString,
		Cores:    cores,
		Features: feats,
	}
}

// adapters enumerates WebGPU adapters.
func adapters() (gpus []Device, err error) {
	defer func() {
		// Native wgpu panics when no driver can be loaded at all.
		if r := recover(); r != nil {
			gpus, err = nil, fmt.Errorf("wgpu: %v", r)
		}
	}()

	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	for i, a := range inst.EnumerateAdapters(nil) {
		info := a.GetInfo()
		gpus = append(gpus, Device{
			Kind:        GPU,
			Index:       i,
			Name:        strings.TrimSpace(info.Name),
			Vendor:      vendorName(info.VendorName, uint32(info.VendorId)),
			Backend:     info.BackendType.String(),
			AdapterType: info.AdapterType.String(),
		})
		a.Release()
	}
	return gpus, nil
}

func vendorName(name string, id uint32) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fmt.Sprintf("0x%04x", id)
}
