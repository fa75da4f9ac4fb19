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

package rest_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mpsvisor/mpsvisor"
	"github.com/mpsvisor/mpsvisor/rest"
)

const testProgram = "../mpsctl_test.sh"

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	tl.t.Log(strings.Trim(string(p), "\n"))
	return len(p), nil
}

type fakeLister struct{}

func (fakeLister) Devices() ([]mpsvisor.Device, error) {
	return []mpsvisor.Device{
		{ID: 0, Name: "Tesla K40m", Major: 3, Minor: 5},
		{ID: 1, Name: "GeForce GTX 980", Major: 5, Minor: 2},
		{ID: 2, Name: "Quadro P5000", Major: 6, Minor: 1},
	}, nil
}

func waitDaemons(s *mpsvisor.Supervisor, n int) bool {
	for i := 0; i < 120; i++ {
		if len(s.ListDaemons()) == n {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return false
}

func WithServer(t *testing.T, name string,
	fn func(c *rest.Client, s *mpsvisor.Supervisor)) func() {
	return func() {
		s := mpsvisor.NewSupervisor(name)
		So(s, ShouldNotBeNil)
		s.SetLogWriter(&testLog{t: t})
		s.SetProgram(testProgram)
		s.SetDeviceLister(fakeLister{})
		s.SetStartupTimeout(250 * time.Millisecond)

		srv := httptest.NewServer(rest.NewHandler(s))
		Reset(func() {
			s.StopAll(true)
			waitDaemons(s, 0)
			srv.Close()
		})
		fn(rest.NewClient(nil, srv.URL), s)
	}
}

func restCode(e error) int {
	if re, ok := e.(*rest.Error); ok {
		return re.Code
	}
	return 0
}

func TestServerInfo(t *testing.T) {
	Convey("The root resource", t,
		WithServer(t, "ServerInfo", func(c *rest.Client, s *mpsvisor.Supervisor) {
			info, e := c.Info()
			So(e, ShouldBeNil)
			So(info.Name, ShouldEqual, "ServerInfo")
			So(info.Program, ShouldEqual, testProgram)
			So(info.Devices, ShouldEqual, 2)
			So(info.Daemons, ShouldEqual, 0)
		}))
}

func TestServerDevices(t *testing.T) {
	Convey("The devices resource", t,
		WithServer(t, "ServerDevices", func(c *rest.Client, s *mpsvisor.Supervisor) {
			devs, e := c.Devices()
			So(e, ShouldBeNil)
			So(len(devs), ShouldEqual, 2)
			So(devs[0].ID, ShouldEqual, 0)
			So(devs[0].Name, ShouldEqual, "Tesla K40m")
			So(devs[0].Capability, ShouldEqual, "3.5")
			So(devs[0].Running, ShouldBeFalse)
			So(devs[1].ID, ShouldEqual, 2)

			Convey("A single device can be fetched", func() {
				d, e := c.Device(2)
				So(e, ShouldBeNil)
				So(d.Name, ShouldEqual, "Quadro P5000")
			})

			Convey("Unknown devices are not found", func() {
				_, e := c.Device(7)
				So(restCode(e), ShouldEqual, http.StatusNotFound)
			})
		}))
}

func TestServerStartStop(t *testing.T) {
	Convey("Starting and stopping over REST", t,
		WithServer(t, "ServerStartStop", func(c *rest.Client, s *mpsvisor.Supervisor) {
			So(c.StartDevice(0, ""), ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			pids, e := c.Daemons()
			So(e, ShouldBeNil)
			So(len(pids), ShouldEqual, 1)

			Convey("The device now reports its daemon", func() {
				d, e := c.Device(0)
				So(e, ShouldBeNil)
				So(d.Running, ShouldBeTrue)
				So(d.Pid, ShouldEqual, pids[0])
				So(d.PipeDir, ShouldNotBeBlank)
			})

			Convey("The daemon resource is consistent", func() {
				d, e := c.Daemon(pids[0])
				So(e, ShouldBeNil)
				So(d.Pid, ShouldEqual, pids[0])
				So(d.PipeDir, ShouldNotBeBlank)
				So(d.Devices, ShouldResemble, []int{0})
			})

			Convey("A second start conflicts", func() {
				e := c.StartDevice(0, "")
				So(restCode(e), ShouldEqual, http.StatusConflict)
			})

			Convey("Stop takes it down", func() {
				So(c.StopDaemon(pids[0], true), ShouldBeNil)
				So(waitDaemons(s, 0), ShouldBeTrue)
			})
		}))
}

func TestServerStartErrors(t *testing.T) {
	Convey("Start error mapping", t,
		WithServer(t, "ServerStartErrors", func(c *rest.Client, s *mpsvisor.Supervisor) {
			Convey("Unsupported devices are a bad request", func() {
				e := c.StartDevice(1, "")
				So(restCode(e), ShouldEqual, http.StatusBadRequest)
				e = c.StartDevice(99, "")
				So(restCode(e), ShouldEqual, http.StatusBadRequest)
			})

			Convey("Stopping an unknown pid is not found", func() {
				e := c.StopDaemon(1, false)
				So(restCode(e), ShouldEqual, http.StatusNotFound)
			})

			Convey("Unknown daemons are not found", func() {
				_, e := c.Daemon(1)
				So(restCode(e), ShouldEqual, http.StatusNotFound)
			})
		}))
}

func TestServerStartStopAll(t *testing.T) {
	Convey("Bulk start and stop over REST", t,
		WithServer(t, "ServerBulk", func(c *rest.Client, s *mpsvisor.Supervisor) {
			So(c.StartAll(), ShouldBeNil)
			So(waitDaemons(s, 2), ShouldBeTrue)

			info, e := c.Info()
			So(e, ShouldBeNil)
			So(info.Daemons, ShouldEqual, 2)

			So(c.StopAll(true), ShouldBeNil)
			So(waitDaemons(s, 0), ShouldBeTrue)
		}))
}

func TestServerLog(t *testing.T) {
	Convey("The log resource", t,
		WithServer(t, "ServerLog", func(c *rest.Client, s *mpsvisor.Supervisor) {
			So(c.StartDevice(0, ""), ShouldBeNil)
			So(waitDaemons(s, 1), ShouldBeTrue)

			info, e := c.GetLog()
			So(e, ShouldBeNil)
			So(info, ShouldNotBeNil)
			found := false
			for _, r := range info.Records {
				if strings.Contains(r.Text, "Started daemon for device 0") {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		}))
}
