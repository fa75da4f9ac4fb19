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
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

const procDir = "/proc"

// The two variables the supervisor reads back out of a running daemon's
// environment.  Extraction is line anchored so that one variable can never
// bleed into another.
var (
	pipeDirPat    = regexp.MustCompile(`(?m)^CUDA_MPS_PIPE_DIRECTORY=(.*)$`)
	visibleDevPat = regexp.MustCompile(`(?m)^CUDA_VISIBLE_DEVICES=(.*)$`)
)

// ListDaemons returns the pids of every control daemon owned by the calling
// user, in ascending order.  A daemon is recognized by its exact command
// line signature: the configured program invoked with the single "-d" flag.
// Absence of any match is normal, so the result is an empty slice, never an
// error.
func (s *Supervisor) ListDaemons() []int {
	pids := []int{}
	ents, err := os.ReadDir(procDir)
	if err != nil {
		return pids
	}
	uid := uint32(os.Getuid())
	for _, ent := range ents {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil || pid <= 0 {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			// Process exited mid-scan.
			continue
		}
		st, ok := info.Sys().(*syscall.Stat_t)
		if !ok || st.Uid != uid {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(procDir, ent.Name(), "cmdline"))
		if err != nil {
			continue
		}
		args := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if s.matchesDaemon(args) {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids
}

// matchesDaemon reports whether a process command line is an instance of
// the supervised program running in daemon mode.  Shebang wrappers exec as
// "<interpreter> <path> -d", so a single leading interpreter is tolerated.
func (s *Supervisor) matchesDaemon(args []string) bool {
	if len(args) == 2 && args[0] == s.program && args[1] == "-d" {
		return true
	}
	if len(args) == 3 && args[1] == s.program && args[2] == "-d" {
		return true
	}
	return false
}

// ReadEnviron returns the raw environment block of the given process, read
// from /proc/<pid>/environ with NUL separators rewritten as newlines.  The
// process may have exited between discovery and read, and processes owned
// by other users cannot be read at all; both yield an empty string rather
// than an error, since every caller treats absence as a normal condition.
func (s *Supervisor) ReadEnviron(pid int) string {
	raw, err := os.ReadFile(filepath.Join(procDir, strconv.Itoa(pid), "environ"))
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(string(raw), "\x00", "\n")
}

// PipeDirectory returns the pipe/log directory a daemon was started with,
// or an empty string when the process is gone or was not started with one.
func (s *Supervisor) PipeDirectory(pid int) string {
	return parsePipeDir(s.ReadEnviron(pid))
}

// VisibleDevices returns the ordered device list a daemon was scoped to,
// parsed from CUDA_VISIBLE_DEVICES in its environment.  It returns nil when
// the process is gone, the variable is absent, or the list does not parse.
func (s *Supervisor) VisibleDevices(pid int) []int {
	return parseVisibleDevs(s.ReadEnviron(pid))
}

func parsePipeDir(environ string) string {
	m := pipeDirPat.FindStringSubmatch(environ)
	if m == nil {
		return ""
	}
	return m[1]
}

func parseVisibleDevs(environ string) []int {
	m := visibleDevPat.FindStringSubmatch(environ)
	if m == nil {
		return nil
	}
	fields := strings.Split(m[1], ",")
	devs := make([]int, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil
		}
		devs = append(devs, d)
	}
	return devs
}
