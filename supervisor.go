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
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultProgram is the MPS control executable.  It must be on PATH,
	// or overridden with an absolute path via SetProgram.
	DefaultProgram = "nvidia-cuda-mps-control"

	// DefaultStartupTimeout bounds how long Start listens for the control
	// program to report an immediate failure before presuming that the
	// daemon detached successfully.
	DefaultStartupTimeout = 500 * time.Millisecond

	pipeDirEnv    = "CUDA_MPS_PIPE_DIRECTORY"
	logDirEnv     = "CUDA_MPS_LOG_DIRECTORY"
	visibleDevEnv = "CUDA_VISIBLE_DEVICES"

	// What the control program prints when a second daemon is pointed at
	// a pipe directory that already has one.
	alreadyRunningMsg = "An instance of this daemon is already running"
)

// Supervisor discovers, inspects, starts and stops MPS control daemons.
// It holds no record of the daemons themselves -- every query re-derives
// the answer from the process table -- so any number of Supervisors, in
// any number of processes, can observe and manipulate the same daemons.
// The only cached state is the supported-device list, computed at most
// once per instance; construct a new Supervisor to re-enumerate.
//
// Tuning setters must be called before the first operation that uses them.
type Supervisor struct {
	name    string
	program string
	timeout time.Duration
	prefix  string
	lister  DeviceLister

	devOnce sync.Once
	devs    []Device
	devErr  error

	logger *log.Logger
	log    *Log
	mlog   *MultiLogger
	mx     sync.Mutex
}

// NewSupervisor returns a Supervisor with the default program, startup
// timeout and NVML device lister.  The name only influences log messages,
// making it possible to distinguish separate instances.
func NewSupervisor(name string) *Supervisor {
	if name == "" {
		name = "mpsvisor"
	}
	s := &Supervisor{
		name:    name,
		program: DefaultProgram,
		timeout: DefaultStartupTimeout,
		prefix:  "mps",
		lister:  nvmlLister{},
	}
	s.mlog = NewMultiLogger()
	s.log = NewLog()
	s.mlog.AddLogger(log.New(s.log, "", 0))
	s.logger = log.New(os.Stderr, "", 0)
	s.mlog.AddLogger(s.logger)
	return s
}

// Name returns the name the supervisor was allocated with.
func (s *Supervisor) Name() string {
	return s.name
}

// Program returns the control executable this supervisor drives.
func (s *Supervisor) Program() string {
	return s.program
}

// SetProgram overrides the control executable.
func (s *Supervisor) SetProgram(path string) {
	s.program = path
}

// SetStartupTimeout overrides how long Start waits for an immediate
// failure report.
func (s *Supervisor) SetStartupTimeout(d time.Duration) {
	s.timeout = d
}

// SetDirPrefix overrides the prefix used for allocated pipe directories.
func (s *Supervisor) SetDirPrefix(prefix string) {
	s.prefix = prefix
}

// SetDeviceLister overrides the device enumeration backend.
func (s *Supervisor) SetDeviceLister(l DeviceLister) {
	s.lister = l
}

// SetLogWriter replaces the supervisor's default stderr log destination.
// The internal ring buffer served by GetLog always receives a copy.
func (s *Supervisor) SetLogWriter(w io.Writer) {
	s.mx.Lock()
	if s.logger != nil {
		s.mlog.DelLogger(s.logger)
	}
	s.logger = log.New(w, "", 0)
	s.mlog.AddLogger(s.logger)
	s.mx.Unlock()
}

// GetLog returns buffered operation log records newer than lastid.
func (s *Supervisor) GetLog(lastid int64) ([]LogRecord, int64) {
	return s.log.GetRecords(lastid)
}

// WatchLog blocks until the operation log has changed from the given id,
// or the duration expires, and returns the current id.
func (s *Supervisor) WatchLog(old int64, expire time.Duration) int64 {
	return s.log.Watch(old, expire)
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.mlog.Logger().Printf(format, v...)
}

// SupportedDevices returns the local GPUs MPS can serve: accelerator-class
// parts with a sufficient compute capability.  Enumeration is expensive,
// so the result is computed once and cached for the life of the
// Supervisor; construct a new instance to pick up hardware changes.
func (s *Supervisor) SupportedDevices() ([]Device, error) {
	s.devOnce.Do(func() {
		devs, err := s.lister.Devices()
		if err != nil {
			s.devErr = errors.Wrap(err, "enumerating devices")
			return
		}
		for _, d := range devs {
			if acceleratorPat.MatchString(d.Name) &&
				d.CapabilityAtLeast(minCapMajor, minCapMinor) {
				s.devs = append(s.devs, d)
			}
		}
	})
	return s.devs, s.devErr
}

// deviceIndex maps a device id to its position within the supported list,
// which is the index daemons are scoped to via CUDA_VISIBLE_DEVICES.
// It returns -1 for devices that are not supported.
func (s *Supervisor) deviceIndex(dev int) int {
	devs, err := s.SupportedDevices()
	if err != nil {
		return -1
	}
	for i, d := range devs {
		if d.ID == dev {
			return i
		}
	}
	return -1
}

// FindDaemonByDevice returns the pid of the first running daemon scoped to
// the given device, or 0 when there is none.  Daemons are launched with
// their visible-device list set to the device's position within the
// supported list, so the argument is resolved to that index before
// comparing against each daemon's environment.
func (s *Supervisor) FindDaemonByDevice(dev int) int {
	idx := s.deviceIndex(dev)
	if idx < 0 {
		return 0
	}
	for _, pid := range s.ListDaemons() {
		if devs := s.VisibleDevices(pid); len(devs) > 0 && devs[0] == idx {
			return pid
		}
	}
	return 0
}

// FindPipeDirByDevice returns the pipe directory of the daemon serving the
// given device, or an empty string when there is none.
func (s *Supervisor) FindPipeDirByDevice(dev int) string {
	pid := s.FindDaemonByDevice(dev)
	if pid == 0 {
		return ""
	}
	return s.PipeDirectory(pid)
}

// withEnv returns a copy of the current process environment with the given
// KEY=value pairs appended, any prior occurrence of those keys removed.
// The overlay is handed directly to the child; the supervisor's own
// environment is never mutated, so concurrent launches cannot corrupt one
// another.
func withEnv(vars ...string) []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+len(vars))
outer:
	for _, kv := range base {
		for _, v := range vars {
			if key, _, ok := strings.Cut(v, "="); ok &&
				strings.HasPrefix(kv, key+"=") {
				continue outer
			}
		}
		env = append(env, kv)
	}
	return append(env, vars...)
}

// Start launches a control daemon scoped to the single device dev.  When
// dir is empty a fresh temporary directory is allocated for the daemon's
// pipes and log; either way the directory is never removed by Start.
//
// Start fails with ErrUnsupportedDevice when dev is not in the supported
// list, and with ErrDaemonRunning when a daemon is already serving dev or
// when the control program itself reports the pipe directory in use.  The
// check and the launch are not atomic: two concurrent Starts for one
// device can both pass the check, and the loser is only caught by the
// control program's own report.
func (s *Supervisor) Start(dev int, dir string) error {
	idx := s.deviceIndex(dev)
	if idx < 0 {
		return errors.Wrapf(ErrUnsupportedDevice, "device %d", dev)
	}
	if pid := s.FindDaemonByDevice(dev); pid != 0 {
		return errors.Wrapf(ErrDaemonRunning, "device %d held by pid %d", dev, pid)
	}
	if dir == "" {
		d, err := os.MkdirTemp("", s.prefix)
		if err != nil {
			return errors.Wrap(err, "allocating pipe directory")
		}
		dir = d
	}

	cmd := exec.Command(s.program, "-d")
	cmd.Env = withEnv(
		visibleDevEnv+"="+strconv.Itoa(idx),
		pipeDirEnv+"="+dir,
		logDirEnv+"="+dir,
	)

	pr, pw, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "capturing daemon output")
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return errors.Wrapf(err, "launching %s", s.program)
	}
	pw.Close()

	outc := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(pr)
		pr.Close()
		outc <- string(b)
	}()
	go cmd.Wait()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case out := <-outc:
		if strings.Contains(out, alreadyRunningMsg) {
			return errors.Wrapf(ErrDaemonRunning, "pipe directory %s in use", dir)
		}
		if t := strings.TrimSpace(out); t != "" {
			s.logf("Unexpected output from %s: %s", s.program, t)
		}
	case <-timer.C:
		// No output inside the window: the daemon is presumed to have
		// detached.  The control program offers no readiness signal,
		// so failures after this point go undetected.
	}

	s.logf("Started daemon for device %d (pipe directory %s)", dev, dir)
	return nil
}

// StartAll starts one daemon per supported device, in enumeration order.
// The first failure aborts the loop and is returned; devices already
// started stay started.
func (s *Supervisor) StartAll() error {
	devs, err := s.SupportedDevices()
	if err != nil {
		return err
	}
	for _, d := range devs {
		if err := s.Start(d.ID, ""); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down the daemon with the given pid by writing "quit" to the
// control program's stdin with the daemon's pipe directory in the
// environment, and waits for the command to be accepted.  It fails with
// ErrNoSuchDaemon when no pipe directory can be read for pid, without
// sending anything.  When clean is set the pipe/log directory tree is
// removed after the daemon accepts the command.
func (s *Supervisor) Stop(pid int, clean bool) error {
	dir := s.PipeDirectory(pid)
	if dir == "" {
		return errors.Wrapf(ErrNoSuchDaemon, "pid %d", pid)
	}

	cmd := exec.Command(s.program)
	cmd.Env = withEnv(pipeDirEnv + "=" + dir)
	cmd.Stdin = strings.NewReader("quit\n")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "stopping pid %d: %s",
			pid, strings.TrimSpace(string(out)))
	}

	if clean {
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "removing %s", dir)
		}
	}
	s.logf("Stopped daemon pid %d (pipe directory %s)", pid, dir)
	return nil
}

// StopAll stops every running daemon found in the process table.  As with
// StartAll, the first failure aborts the loop and is returned.
func (s *Supervisor) StopAll(clean bool) error {
	for _, pid := range s.ListDaemons() {
		if err := s.Stop(pid, clean); err != nil {
			return err
		}
	}
	return nil
}
