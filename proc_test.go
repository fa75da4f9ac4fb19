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

package mpsvisor

import (
	"os"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParsePipeDir(t *testing.T) {
	Convey("Pipe directory extraction", t, func() {
		Convey("A plain assignment parses", func() {
			env := "HOME=/root\nCUDA_MPS_PIPE_DIRECTORY=/tmp/mps1\nSHELL=/bin/sh"
			So(parsePipeDir(env), ShouldEqual, "/tmp/mps1")
		})
		Convey("Only whole variable names match", func() {
			env := "XCUDA_MPS_PIPE_DIRECTORY=/bad\nOTHER=1"
			So(parsePipeDir(env), ShouldBeBlank)
		})
		Convey("The value never bleeds into the next variable", func() {
			env := "CUDA_MPS_PIPE_DIRECTORY=/tmp/x\nOTHER=1"
			So(parsePipeDir(env), ShouldEqual, "/tmp/x")
		})
		Convey("Absence yields an empty string", func() {
			So(parsePipeDir("HOME=/root\nSHELL=/bin/sh"), ShouldBeBlank)
			So(parsePipeDir(""), ShouldBeBlank)
		})
		Convey("An empty value reads as absent", func() {
			So(parsePipeDir("CUDA_MPS_PIPE_DIRECTORY="), ShouldBeBlank)
		})
	})
}

func TestParseVisibleDevs(t *testing.T) {
	Convey("Visible device extraction", t, func() {
		Convey("A single device parses", func() {
			So(parseVisibleDevs("CUDA_VISIBLE_DEVICES=3"),
				ShouldResemble, []int{3})
		})
		Convey("A comma separated list parses in order", func() {
			So(parseVisibleDevs("A=1\nCUDA_VISIBLE_DEVICES=2, 5,0\nB=2"),
				ShouldResemble, []int{2, 5, 0})
		})
		Convey("Absence yields nil", func() {
			So(parseVisibleDevs("A=1\nB=2"), ShouldBeNil)
		})
		Convey("A malformed list yields nil", func() {
			So(parseVisibleDevs("CUDA_VISIBLE_DEVICES=abc"), ShouldBeNil)
			So(parseVisibleDevs("CUDA_VISIBLE_DEVICES=1,x"), ShouldBeNil)
			So(parseVisibleDevs("CUDA_VISIBLE_DEVICES="), ShouldBeNil)
		})
	})
}

func TestMatchesDaemon(t *testing.T) {
	Convey("Daemon command line matching", t, func() {
		s := NewSupervisor("MatchDaemon")
		s.SetProgram("nvidia-cuda-mps-control")

		Convey("The exact signature matches", func() {
			So(s.matchesDaemon([]string{
				"nvidia-cuda-mps-control", "-d"}), ShouldBeTrue)
		})
		Convey("An interpreter wrapper matches", func() {
			So(s.matchesDaemon([]string{
				"/bin/sh", "nvidia-cuda-mps-control", "-d"}), ShouldBeTrue)
		})
		Convey("Anything else does not", func() {
			So(s.matchesDaemon([]string{
				"nvidia-cuda-mps-control"}), ShouldBeFalse)
			So(s.matchesDaemon([]string{
				"nvidia-cuda-mps-control", "-d", "x"}), ShouldBeFalse)
			So(s.matchesDaemon([]string{
				"other-program", "-d"}), ShouldBeFalse)
			So(s.matchesDaemon([]string{
				"nvidia-cuda-mps-control", "-x"}), ShouldBeFalse)
			So(s.matchesDaemon(nil), ShouldBeFalse)
		})
	})
}

func TestReadEnviron(t *testing.T) {
	Convey("Reading process environments", t, func() {
		s := NewSupervisor("ReadEnviron")

		Convey("Our own environment is visible", func() {
			env := s.ReadEnviron(os.Getpid())
			So(env, ShouldNotBeBlank)
			So(strings.Contains(env, "\x00"), ShouldBeFalse)
		})
		Convey("A bogus pid yields an empty string", func() {
			So(s.ReadEnviron(-1), ShouldBeBlank)
			So(s.ReadEnviron(1<<30), ShouldBeBlank)
		})
	})
}

func TestWithEnv(t *testing.T) {
	Convey("Environment overlays", t, func() {
		os.Setenv("MPSVISOR_TEST_VAR", "old")
		defer os.Unsetenv("MPSVISOR_TEST_VAR")

		env := withEnv("MPSVISOR_TEST_VAR=new", "MPSVISOR_TEST_OTHER=1")

		seen := 0
		for _, kv := range env {
			if strings.HasPrefix(kv, "MPSVISOR_TEST_VAR=") {
				seen++
				So(kv, ShouldEqual, "MPSVISOR_TEST_VAR=new")
			}
		}
		Convey("The prior value is replaced, not shadowed", func() {
			So(seen, ShouldEqual, 1)
		})
		Convey("New variables are appended", func() {
			So(env[len(env)-1], ShouldEqual, "MPSVISOR_TEST_OTHER=1")
		})
	})
}
