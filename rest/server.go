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

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/mpsvisor/mpsvisor"
)

// Handler wraps a Supervisor, adding http.Handler functionality.  It can
// be served directly, or registered as a subtree within a larger server.
type Handler struct {
	s *mpsvisor.Supervisor
	r *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// errorFor maps supervisor failures onto HTTP statuses.  Unsupported
// devices are the caller's mistake, an existing daemon is a conflict, a
// missing daemon is not found, and anything else is the tool's fault.
func errorFor(err error) *Error {
	code := http.StatusInternalServerError
	switch errors.Cause(err) {
	case mpsvisor.ErrUnsupportedDevice:
		code = http.StatusBadRequest
	case mpsvisor.ErrDaemonRunning:
		code = http.StatusConflict
	case mpsvisor.ErrNoSuchDaemon:
		code = http.StatusNotFound
	}
	return &Error{Code: code, Message: err.Error()}
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	devs, err := h.s.SupportedDevices()
	if err != nil {
		h.writeError(w, errorFor(err))
		return
	}
	h.writeJson(w, &SupervisorInfo{
		Name:    h.s.Name(),
		Program: h.s.Program(),
		Devices: len(devs),
		Daemons: len(h.s.ListDaemons()),
	})
}

func (h *Handler) deviceInfo(d mpsvisor.Device) *DeviceInfo {
	info := &DeviceInfo{
		ID:         d.ID,
		Name:       d.Name,
		Capability: d.Capability(),
	}
	if pid := h.s.FindDaemonByDevice(d.ID); pid != 0 {
		info.Running = true
		info.Pid = pid
		info.PipeDir = h.s.PipeDirectory(pid)
	}
	return info
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devs, err := h.s.SupportedDevices()
	if err != nil {
		h.writeError(w, errorFor(err))
		return
	}
	l := make([]*DeviceInfo, 0, len(devs))
	for _, d := range devs {
		l = append(l, h.deviceInfo(d))
	}
	h.writeJson(w, l)
}

func (h *Handler) findDevice(idstr string) (mpsvisor.Device, *Error) {
	id, err := strconv.Atoi(idstr)
	if err != nil {
		return mpsvisor.Device{}, &Error{http.StatusBadRequest, "Bad device id"}
	}
	devs, err := h.s.SupportedDevices()
	if err != nil {
		return mpsvisor.Device{}, errorFor(err)
	}
	for _, d := range devs {
		if d.ID == id {
			return d, nil
		}
	}
	return mpsvisor.Device{}, &Error{http.StatusNotFound, "Device not found"}
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if d, e := h.findDevice(vars["device"]); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, h.deviceInfo(d))
	}
}

func (h *Handler) startDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["device"])
	if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, "Bad device id"})
		return
	}
	dir := r.URL.Query().Get("dir")
	if err := h.s.Start(id, dir); err != nil {
		h.writeError(w, errorFor(err))
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) startAll(w http.ResponseWriter, r *http.Request) {
	if err := h.s.StartAll(); err != nil {
		h.writeError(w, errorFor(err))
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) listDaemons(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.s.ListDaemons())
}

func (h *Handler) findDaemon(pidstr string) (int, *Error) {
	pid, err := strconv.Atoi(pidstr)
	if err != nil {
		return 0, &Error{http.StatusBadRequest, "Bad pid"}
	}
	for _, p := range h.s.ListDaemons() {
		if p == pid {
			return pid, nil
		}
	}
	return 0, &Error{http.StatusNotFound, "Daemon not found"}
}

func (h *Handler) getDaemon(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pid, e := h.findDaemon(vars["pid"])
	if e != nil {
		h.writeError(w, e)
		return
	}
	h.writeJson(w, &DaemonInfo{
		Pid:     pid,
		PipeDir: h.s.PipeDirectory(pid),
		Devices: h.s.VisibleDevices(pid),
	})
}

func cleanParam(r *http.Request) bool {
	switch r.URL.Query().Get("clean") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (h *Handler) stopDaemon(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pid, err := strconv.Atoi(vars["pid"])
	if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, "Bad pid"})
		return
	}
	if err := h.s.Stop(pid, cleanParam(r)); err != nil {
		h.writeError(w, errorFor(err))
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) stopAll(w http.ResponseWriter, r *http.Request) {
	if err := h.s.StopAll(cleanParam(r)); err != nil {
		h.writeError(w, errorFor(err))
	} else {
		h.writeJson(w, ok)
	}
}

// getLog serves the operation log with etag support.  A request carrying
// the poll headers blocks until the log moves past the given etag or the
// requested number of seconds elapses; an If-None-Match that still holds
// yields 304 without a body.
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	var last int64
	if etag := r.Header.Get("If-None-Match"); etag != "" {
		last, _ = strconv.ParseInt(etag, 10, 64)
	}
	if petag := r.Header.Get(PollEtagHeader); petag != "" && last != 0 {
		secs, _ := strconv.Atoi(r.Header.Get(PollTimeHeader))
		if secs > 0 {
			h.s.WatchLog(last, time.Duration(secs)*time.Second)
		}
	}
	recs, id := h.s.GetLog(last)
	if recs == nil && last != 0 {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Etag", strconv.FormatInt(id, 10))
	h.writeJson(w, recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(s *mpsvisor.Supervisor) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, r: r}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/devices", h.listDevices).Methods("GET")
	r.HandleFunc("/devices/{device}", h.getDevice).Methods("GET")
	r.HandleFunc("/devices/{device}/start", h.startDevice).Methods("POST")
	r.HandleFunc("/start", h.startAll).Methods("POST")
	r.HandleFunc("/daemons", h.listDaemons).Methods("GET")
	r.HandleFunc("/daemons/{pid}", h.getDaemon).Methods("GET")
	r.HandleFunc("/daemons/{pid}/stop", h.stopDaemon).Methods("POST")
	r.HandleFunc("/stop", h.stopAll).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
