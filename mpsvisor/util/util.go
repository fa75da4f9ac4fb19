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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"sort"

	"github.com/mpsvisor/mpsvisor/rest"
)

func Status(d *rest.DeviceInfo) string {
	if d.Running {
		return "running"
	}
	return "idle"
}

type sorted []*rest.DeviceInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Running != b.Running {
		// put running devices at front
		return a.Running
	}
	return a.ID < b.ID
}

func SortDevices(items []*rest.DeviceInfo) {
	sort.Sort(sorted(items))
}
