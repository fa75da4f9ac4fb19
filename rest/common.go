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

package rest

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader carries the etag a long poll should wait to see
	// superseded; PollTimeHeader bounds the wait in seconds.
	PollEtagHeader = "X-Mpsvisor-Poll-Etag"
	PollTimeHeader = "X-Mpsvisor-Poll-Time"
)

var ok struct{}

// SupervisorInfo is the top-level resource served at the tree root.
type SupervisorInfo struct {
	Name    string `json:"name"`
	Program string `json:"program"`
	Devices int    `json:"devices"`
	Daemons int    `json:"daemons"`
}

// DeviceInfo describes one supported GPU together with the daemon (if any)
// currently serving it.
type DeviceInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Capability string `json:"capability"`
	Running    bool   `json:"running"`
	Pid        int    `json:"pid,omitempty"`
	PipeDir    string `json:"pipedir,omitempty"`
}

// DaemonInfo describes one running control daemon as derived from the
// process table.
type DaemonInfo struct {
	Pid     int    `json:"pid"`
	PipeDir string `json:"pipedir"`
	Devices []int  `json:"devices"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
