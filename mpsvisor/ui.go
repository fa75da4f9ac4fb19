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

package main

import (
	"github.com/mpsvisor/mpsvisor/mpsvisor/ui"
	"github.com/mpsvisor/mpsvisor/rest"
)

func doUI(client *rest.Client, url string) {
	app := ui.NewApp(client, url)
	app.Run()
}

/*
   Our screen has the following appearance:

    http://localhost:8573/                                        Mpsvisor v1.0
       2 Devices      1 Running      1 Idle
   ____________________________________________________________________________
      0 Tesla K40m             3.5    running   pid 12345  /tmp/mps_oTqVJ2
      1 Quadro P5000           6.1    idle
   ____________________________________________________________________________
   [Q] Quit [H] Help [S] Start [K] Stop [I] Info [L] Log
*/
