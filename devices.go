// Copyright 2025 The Mpsvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mpsvisor

import (
	"fmt"
	"regexp"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/pkg/errors"
)

// Device describes one local GPU as reported by a DeviceLister.  ID is the
// host-wide device index, the same index CUDA_VISIBLE_DEVICES counts in.
type Device struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Major int    `json:"major"`
	Minor int    `json:"minor"`
}

// Capability renders the compute capability in the usual major.minor form.
func (d Device) Capability() string {
	return fmt.Sprintf("%d.%d", d.Major, d.Minor)
}

// CapabilityAtLeast reports whether the device's compute capability meets
// or exceeds major.minor.
func (d Device) CapabilityAtLeast(major, minor int) bool {
	if d.Major != major {
		return d.Major > major
	}
	return d.Minor >= minor
}

// DeviceLister enumerates the GPUs visible on this host.  The default
// implementation queries NVML; tests substitute their own via
// Supervisor.SetDeviceLister.
type DeviceLister interface {
	Devices() ([]Device, error)
}

// MPS requires a server-class part (Tesla or Quadro) with compute
// capability 3.5 or better.
var acceleratorPat = regexp.MustCompile(`Tesla|Quadro`)

const (
	minCapMajor = 3
	minCapMinor = 5
)

// nvmlLister enumerates devices through the NVIDIA management library.
// NVML is initialized and shut down around each enumeration; the supervisor
// only asks once per lifetime, so there is nothing to be gained by keeping
// the library attached.
type nvmlLister struct{}

func (nvmlLister) Devices() ([]Device, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errors.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errors.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}

	devs := make([]Device, 0, count)
	for i := 0; i < count; i++ {
		h, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		name, ret := h.GetName()
		if ret != nvml.SUCCESS {
			continue
		}
		major, minor, ret := h.GetCudaComputeCapability()
		if ret != nvml.SUCCESS {
			continue
		}
		devs = append(devs, Device{ID: i, Name: name, Major: major, Minor: minor})
	}
	return devs, nil
}
