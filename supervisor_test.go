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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

// The test suite relies pretty heavily on a mpsctl_test.sh script that is
// bundled, but is pretty specific to POSIX systems.  It stands in for the
// real control program, which needs NVIDIA hardware we cannot assume.

package mpsvisor

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

const testProgram = "./mpsctl_test.sh"

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

type fakeLister struct {
	devs  []Device
	err   error
	calls int
}

func (l *fakeLister) Devices() ([]Device, error) {
	l.calls++
	return l.devs, l.err
}

// newFakeLister returns a lister where devices 0 and 2 are supported.
// Device 2 lands at position 1 of the supported list, which exercises the
// id-to-index mapping.
func newFakeLister() *fakeLister {
	return &fakeLister{devs: []Device{
		{ID: 0, Name: "Tesla K40m", Major: 3, Minor: 5},
		{ID: 1, Name: "GeForce GTX 980", Major: 5, Minor: 2},
		{ID: 2, Name: "Quadro P5000", Major: 6, Minor: 1},
		{ID: 3, Name: "Tesla K10", Major: 3, Minor: 0},
	}}
}

// waitFor polls a condition for a few seconds; the stub daemons take a
// little while to notice a quit request.
func waitFor(cond func() bool) bool {
	for i := 0; i < 120; i++ {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return false
}

func waitDaemons(s *Supervisor, n int) bool {
	return waitFor(func() bool {
		return len(s.ListDaemons()) == n
	})
}

func WithSupervisor(t *testing.T, name string, fn func(s *Supervisor)) func() {
	return func() {
		s := NewSupervisor(name)
		So(s, ShouldNotBeNil)
		s.SetLogWriter(&testLog{t: t})
		s.SetProgram(testProgram)
		s.SetDeviceLister(newFakeLister())
		s.SetStartupTimeout(250 * time.Millisecond)
		Reset(func() {
			s.StopAll(true)
			waitDaemons(s, 0)
		})
		fn(s)
	}
}

func TestSupportedDevices(t *testing.T) {
	Convey("Supported devices", t, func() {
		s := NewSupervisor("SupportedDevices")
		s.SetLogWriter(&testLog{t: t})
		lister := newFakeLister()
		s.SetDeviceLister(lister)

		devs, e := s.SupportedDevices()
		So(e, ShouldBeNil)
		So(len(devs), ShouldEqual, 2)
		So(devs[0].ID, ShouldEqual, 0)
		So(devs[0].Name, ShouldEqual, "Tesla K40m")
		So(devs[1].ID, ShouldEqual, 2)
		So(devs[1].Capability(), ShouldEqual, "6.1")

		Convey("The enumeration is cached", func() {
			devs2, e := s.SupportedDevices()
			So(e, ShouldBeNil)
			So(len(devs2), ShouldEqual, 2)
			So(lister.calls, ShouldEqual, 1)
		})
	})
}

func TestEnumerationFailure(t *testing.T) {
	Convey("Device enumeration failure", t, func() {
		s := NewSupervisor("EnumFailure")
		s.SetLogWriter(&testLog{t: t})
		s.SetDeviceLister(&fakeLister{err: errors.New("no driver")})

		_, e := s.SupportedDevices()
		So(e, ShouldNotBeNil)

		Convey("StartAll reports it", func() {
			So(s.StartAll(), ShouldNotBeNil)
		})

		Convey("Start treats every device as unsupported", func() {
			e := s.Start(0, "")
			So(errors.Cause(e), ShouldEqual, ErrUnsupportedDevice)
		})
	})
}

func TestStartUnsupportedDevice(t *testing.T) {
	Convey("Start on an unsupported device", t,
		WithSupervisor(t, "Unsupported", func(s *Supervisor) {
			e := s.Start(1, "")
			So(errors.Cause(e), ShouldEqual, ErrUnsupportedDevice)

			e = s.Start(99, "")
			So(errors.Cause(e), ShouldEqual, ErrUnsupportedDevice)

			So(s.ListDaemons(), ShouldBeEmpty)
		}))
}

func TestStartStop(t *testing.T) {
	Convey("Start and stop a daemon", t,
		WithSupervisor(t, "StartStop", func(s *Supervisor) {
			So(s.ListDaemons(), ShouldBeEmpty)

			e := s.Start(2, "")
			So(e, ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			pid := s.FindDaemonByDevice(2)
			So(pid, ShouldNotEqual, 0)

			Convey("Its environment is what we launched with", func() {
				// device 2 is the second supported device
				So(s.VisibleDevices(pid), ShouldResemble, []int{1})
				dir := s.PipeDirectory(pid)
				So(dir, ShouldNotBeBlank)
				So(s.FindPipeDirByDevice(2), ShouldEqual, dir)
				So(s.ReadEnviron(pid), ShouldContainSubstring,
					"CUDA_MPS_LOG_DIRECTORY="+dir)
			})

			Convey("Nothing is found for the other device", func() {
				So(s.FindDaemonByDevice(0), ShouldEqual, 0)
				So(s.FindPipeDirByDevice(0), ShouldBeBlank)
			})

			Convey("Stop with clean removes the directory", func() {
				dir := s.PipeDirectory(pid)
				So(s.Stop(pid, true), ShouldBeNil)
				So(waitDaemons(s, 0), ShouldBeTrue)
				So(s.FindDaemonByDevice(2), ShouldEqual, 0)
				_, e := os.Stat(dir)
				So(os.IsNotExist(e), ShouldBeTrue)
			})
		}))
}

func TestStartConflictDevice(t *testing.T) {
	Convey("Second start for the same device fails", t,
		WithSupervisor(t, "ConflictDev", func(s *Supervisor) {
			So(s.Start(0, ""), ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			e := s.Start(0, "")
			So(errors.Cause(e), ShouldEqual, ErrDaemonRunning)
			So(len(s.ListDaemons()), ShouldEqual, 1)
		}))
}

func TestStartConflictDir(t *testing.T) {
	Convey("Two devices cannot share a pipe directory", t,
		WithSupervisor(t, "ConflictDir", func(s *Supervisor) {
			dir, e := os.MkdirTemp("", "mpstest")
			So(e, ShouldBeNil)
			Reset(func() {
				os.RemoveAll(dir)
			})

			So(s.Start(0, dir), ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			// The running-daemon check cannot catch this; only
			// the control program's own report does.
			e = s.Start(2, dir)
			So(errors.Cause(e), ShouldEqual, ErrDaemonRunning)
			So(len(s.ListDaemons()), ShouldEqual, 1)
		}))
}

func TestStopUnknownDaemon(t *testing.T) {
	Convey("Stop on a pid without a pipe directory", t,
		WithSupervisor(t, "StopUnknown", func(s *Supervisor) {
			e := s.Stop(1, false)
			So(errors.Cause(e), ShouldEqual, ErrNoSuchDaemon)
		}))
}

func TestStartStopAll(t *testing.T) {
	Convey("StartAll and StopAll", t,
		WithSupervisor(t, "StartStopAll", func(s *Supervisor) {
			So(s.StartAll(), ShouldBeNil)
			So(waitDaemons(s, 2), ShouldBeTrue)

			pids := s.ListDaemons()
			So(len(pids), ShouldEqual, 2)
			So(pids[0], ShouldBeLessThan, pids[1])

			So(s.FindDaemonByDevice(0), ShouldNotEqual, 0)
			So(s.FindDaemonByDevice(2), ShouldNotEqual, 0)

			Convey("A second StartAll conflicts", func() {
				e := s.StartAll()
				So(errors.Cause(e), ShouldEqual, ErrDaemonRunning)
			})

			Convey("StopAll takes them all down", func() {
				So(s.StopAll(true), ShouldBeNil)
				So(waitDaemons(s, 0), ShouldBeTrue)
			})
		}))
}

func TestOperationLog(t *testing.T) {
	Convey("Operations are logged", t,
		WithSupervisor(t, "OpLog", func(s *Supervisor) {
			So(s.Start(0, ""), ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			recs, id := s.GetLog(0)
			So(id, ShouldNotEqual, 0)
			So(len(recs), ShouldBeGreaterThan, 0)
			found := false
			for _, r := range recs {
				if strings.Contains(r.Text, "Started daemon for device 0") {
					found = true
				}
			}
			So(found, ShouldBeTrue)

			Convey("And the id works as a change marker", func() {
				recs2, id2 := s.GetLog(id)
				So(recs2, ShouldBeNil)
				So(id2, ShouldEqual, id)
			})
		}))
}
