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

// Command mpsvisor implements a client application that communicates with
// mpsvisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the server address, default is
//			  http://127.0.0.1:8573
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	devices               - list supported devices with daemon state
//	daemons               - list running daemon pids
//	status [<dev> ...]    - show status for the named devices (or all)
//	info <pid>            - show detailed daemon info
//	start <dev> [<dir>]   - start a daemon for the device
//	start all             - start a daemon for every device
//	stop <pid> [clean]    - stop the daemon, optionally removing its dir
//	stop all [clean]      - stop every daemon
//	log                   - obtain the server's operation log
//	ui                    - interactive interface (the default)
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mpsvisor/mpsvisor/mpsvisor/util"
	"github.com/mpsvisor/mpsvisor/rest"
)

var addr string = "http://127.0.0.1:8573"
var auth string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func showDevice(d *rest.DeviceInfo) {
	detail := ""
	if d.Running {
		detail = fmt.Sprintf("pid %d  %s", d.Pid, d.PipeDir)
	}
	fmt.Printf("%4d %-24s %5s %8s   %s\n",
		d.ID, d.Name, d.Capability, util.Status(d), detail)
}

func main() {
	flag.StringVar(&addr, "a", addr, "mpsvisord address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	switch args[0] {
	case "devices":
		if len(args) != 1 {
			usage()
		}
		devs, e := client.Devices()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		util.SortDevices(devs)
		for _, d := range devs {
			showDevice(d)
		}
	case "daemons":
		if len(args) != 1 {
			usage()
		}
		pids, e := client.Daemons()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, pid := range pids {
			fmt.Println(pid)
		}
	case "status":
		devs, e := client.Devices()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		if len(args) > 1 {
			want := make(map[int]bool)
			for _, a := range args[1:] {
				id, e := strconv.Atoi(a)
				if e != nil {
					usage()
				}
				want[id] = true
			}
			filtered := devs[:0]
			for _, d := range devs {
				if want[d.ID] {
					filtered = append(filtered, d)
				}
			}
			devs = filtered
		}
		util.SortDevices(devs)
		for _, d := range devs {
			showDevice(d)
		}
	case "info":
		if len(args) != 2 {
			usage()
		}
		pid, e := strconv.Atoi(args[1])
		if e != nil {
			usage()
		}
		d, e := client.Daemon(pid)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Pid:      %d\n", d.Pid)
		fmt.Printf("Pipe dir: %s\n", d.PipeDir)
		fmt.Printf("Devices: ")
		for _, v := range d.Devices {
			fmt.Printf(" %d", v)
		}
		fmt.Printf("\n")
	case "start":
		if len(args) < 2 || len(args) > 3 {
			usage()
		}
		if args[1] == "all" {
			if len(args) != 2 {
				usage()
			}
			if e := client.StartAll(); e != nil {
				log.Fatalf("Failed: %v", e)
			}
			return
		}
		id, e := strconv.Atoi(args[1])
		if e != nil {
			usage()
		}
		dir := ""
		if len(args) == 3 {
			dir = args[2]
		}
		if e := client.StartDevice(id, dir); e != nil {
			log.Fatalf("Failed: %v", e)
		}
	case "stop":
		if len(args) < 2 || len(args) > 3 {
			usage()
		}
		clean := false
		if len(args) == 3 {
			if args[2] != "clean" {
				usage()
			}
			clean = true
		}
		if args[1] == "all" {
			if e := client.StopAll(clean); e != nil {
				log.Fatalf("Failed: %v", e)
			}
			return
		}
		pid, e := strconv.Atoi(args[1])
		if e != nil {
			usage()
		}
		if e := client.StopDaemon(pid, clean); e != nil {
			log.Fatalf("Failed: %v", e)
		}
	case "log":
		if len(args) != 1 {
			usage()
		}
		info, e := client.GetLog()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		if info != nil {
			for _, r := range info.Records {
				fmt.Printf("%s %s\n",
					r.Time.Format(time.StampMilli), r.Text)
			}
		}
	case "ui":
		doUI(client, addr)
	default:
		usage()
	}
}
