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

// Command mpsvisord serves the supervisor's REST interface over HTTP.
// Daemons it starts are ordinary system processes; they survive mpsvisord
// restarts, and a restarted mpsvisord picks them up again from the process
// table.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/mpsvisor/mpsvisor"
	"github.com/mpsvisor/mpsvisor/rest"
)

var addr string = "127.0.0.1:8573"
var name string = "mpsvisord"
var program string = mpsvisor.DefaultProgram
var startall bool = false
var lockpath string = ""

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&name, "n", name, "supervisor name")
	flag.StringVar(&program, "p", program, "MPS control program")
	flag.BoolVar(&startall, "e", startall, "start a daemon per device at boot")
	flag.StringVar(&lockpath, "l", lockpath, "instance lock file")
	flag.Parse()

	if lockpath == "" {
		lockpath = filepath.Join(os.TempDir(), name+".lock")
	}
	lock := flock.New(lockpath)
	if held, e := lock.TryLock(); e != nil {
		log.Fatalf("Failed to acquire lock %s: %v", lockpath, e)
	} else if !held {
		log.Fatalf("Another %s instance is already running", name)
	}

	s := mpsvisor.NewSupervisor(name)
	s.SetProgram(program)

	if startall {
		if e := s.StartAll(); e != nil {
			log.Fatalf("Failed to start daemons: %v", e)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		log.Fatal(http.ListenAndServe(addr, rest.NewHandler(s)))
	}()

	// Daemons are left running on shutdown; they belong to the system,
	// not to this process.
	<-sigs
	lock.Unlock()
	os.Exit(0)
}
