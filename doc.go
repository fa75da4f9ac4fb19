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

// Package mpsvisor supervises instances of the NVIDIA CUDA Multi-Process
// Service control daemon (nvidia-cuda-mps-control).  It does not implement
// MPS itself; it discovers running control daemons by scanning the process
// table, reads their configuration out of /proc/<pid>/environ, starts new
// daemons scoped to a single GPU, and stops them by issuing the daemon's
// own "quit" command on its control channel.
//
// The supervisor is deliberately stateless.  Every query re-derives the
// set of running daemons from the process table, so multiple supervisors
// (even in different processes, or the nvidia-cuda-mps-control tool run
// by hand) can manipulate the same daemons without stepping on a private
// registry.  The price of that interoperability is the usual
// time-of-check/time-of-use races; mutating operations check first and
// act second without holding any system-wide lock.
//
// Multiple instances of mpsvisord may be deployed, and the REST handler
// may be registered within an existing Go HTTP server instance.
package mpsvisor
