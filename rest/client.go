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
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/context"

	"github.com/mpsvisor/mpsvisor"
)

// LogInfo carries one snapshot of the server's operation log together with
// the etag it was served under, for use with WatchLog.
type LogInfo struct {
	etag    string
	Records []mpsvisor.LogRecord
}

// Client speaks to a remote supervisor over its REST interface.
type Client struct {
	user      string // HTTP Basic-Auth
	pass      string
	base      string // URI to root of tree on server
	auth      bool
	client    *http.Client
	transport *http.Transport

	// Cached log snapshot
	log  *LogInfo
	lock sync.Mutex
}

// NewClient returns a Client handle.  The transport may be nil to use a
// default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		transport: t,
		base:      baseURI,
		client:    &http.Client{Transport: t},
	}
}

// SetAuth arranges for HTTP Basic-Auth credentials on every request.
func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

type chanResp struct {
	r *http.Response
	e error
}

// get issues an HTTP GET against the URL and decodes the JSON body into v.
// With a non-empty etag the request carries If-None-Match, and with wait
// also the long-poll headers; an unchanged resource comes back as an empty
// etag with a nil error, leaving v untouched.
func (c *Client) get(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequest("GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	ch := make(chan chanResp)
	go func() {
		res, e := c.client.Do(req)
		ch <- chanResp{r: res, e: e}
	}()

	var res *http.Response
	select {
	case <-ctx.Done():
		c.transport.CancelRequest(req)
		<-ch // wait for the Do to finish (or be canceled)
		return "", ctx.Err()
	case cr := <-ch:
		res = cr.r
		e = cr.e
	}
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", clientError(res)
	}
	body, e := ioutil.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	tag := res.Header.Get("Etag")
	if tag == "" {
		tag = "*"
	}
	return tag, nil
}

func (c *Client) getNow(url string, v interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	_, e := c.get(ctx, url, "", 0, v)
	return e
}

func (c *Client) post(url string) error {
	req, e := http.NewRequest("POST", url, nil)
	if e != nil {
		return e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return clientError(res)
	}
	return nil
}

// clientError prefers the server's own JSON error body, falling back to
// the bare HTTP status.
func clientError(res *http.Response) error {
	e := &Error{}
	if body, err := ioutil.ReadAll(res.Body); err == nil {
		if json.Unmarshal(body, e) == nil && e.Message != "" {
			e.Code = res.StatusCode
			return e
		}
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

// Info returns top-level information about the remote supervisor.
func (c *Client) Info() (*SupervisorInfo, error) {
	v := &SupervisorInfo{}
	if e := c.getNow(c.base+"/", v); e != nil {
		return nil, e
	}
	return v, nil
}

// Devices returns the supported devices along with their daemon state.
func (c *Client) Devices() ([]*DeviceInfo, error) {
	v := []*DeviceInfo{}
	if e := c.getNow(c.base+"/devices", &v); e != nil {
		return nil, e
	}
	return v, nil
}

// Device returns one device by id.
func (c *Client) Device(id int) (*DeviceInfo, error) {
	v := &DeviceInfo{}
	if e := c.getNow(c.base+"/devices/"+strconv.Itoa(id), v); e != nil {
		return nil, e
	}
	return v, nil
}

// StartDevice starts a daemon for the given device.  An empty dir lets the
// server allocate a temporary pipe directory.
func (c *Client) StartDevice(id int, dir string) error {
	u := c.base + "/devices/" + strconv.Itoa(id) + "/start"
	if dir != "" {
		u += "?dir=" + url.QueryEscape(dir)
	}
	return c.post(u)
}

// StartAll starts a daemon for every supported device.
func (c *Client) StartAll() error {
	return c.post(c.base + "/start")
}

// Daemons returns the pids of all running daemons.
func (c *Client) Daemons() ([]int, error) {
	v := []int{}
	if e := c.getNow(c.base+"/daemons", &v); e != nil {
		return nil, e
	}
	return v, nil
}

// Daemon returns one daemon by pid.
func (c *Client) Daemon(pid int) (*DaemonInfo, error) {
	v := &DaemonInfo{}
	if e := c.getNow(c.base+"/daemons/"+strconv.Itoa(pid), v); e != nil {
		return nil, e
	}
	return v, nil
}

// StopDaemon stops the daemon with the given pid, removing its pipe
// directory when clean is set.
func (c *Client) StopDaemon(pid int, clean bool) error {
	u := c.base + "/daemons/" + strconv.Itoa(pid) + "/stop"
	if clean {
		u += "?clean=true"
	}
	return c.post(u)
}

// StopAll stops every running daemon.
func (c *Client) StopAll(clean bool) error {
	u := c.base + "/stop"
	if clean {
		u += "?clean=true"
	}
	return c.post(u)
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {

	c.lock.Lock()
	cached := c.log
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && last.etag != cached.etag {
		// The cache has already moved past what the caller saw.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &LogInfo{}
	etag, e := c.get(ctx, c.base+"/log", otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		c.log = nil
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.log = v
	c.lock.Unlock()
	return v, nil
}

// GetLog fetches the server's operation log, using cache checks.  It does
// not wait for changes.
func (c *Client) GetLog() (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return c.pollLog(ctx, 0, nil)
}

// WatchLog blocks until the operation log changes from the snapshot the
// caller last saw, letting the server hold the poll for up to 5 minutes.
func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, 300, last)
}
