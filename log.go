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
	"strings"
	"sync"
	"time"
)

const (
	// MaxLogRecords is how many operation log lines the ring retains.
	MaxLogRecords = 1000
)

// LogRecord is a single line of the supervisor's operation log.  Ids are
// monotonically increasing within one Log instance and are suitable for
// use as Etags.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a fixed-size ring of LogRecords with change notification.  It
// implements io.Writer so it can sit behind a log.Logger.
type Log struct {
	records []LogRecord
	next    int
	id      int64
	cvs     map[*sync.Cond]bool
	mx      sync.Mutex
}

// NewLog returns an empty Log.  The initial id is taken from the clock so
// that a restarted server never hands out an id an old client has seen.
func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		id:      time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
}

// Write implements the Writer interface consumed by Logger.  Input is
// expected to be newline delimited text, one or more whole lines per call.
func (l *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		idx := l.next % len(l.records)
		l.id++
		l.records[idx].Text = line
		l.records[idx].Id = l.id
		l.records[idx].Time = time.Now()
		// next counts total writes, not slots; the modulus above is
		// what wraps it.
		l.next++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Clear discards all buffered records.  The id is re-seeded from the clock
// so stale client ids cannot collide with post-clear ones.
func (l *Log) Clear() {
	l.mx.Lock()
	l.next = 0
	l.id = time.Now().UnixNano()
	l.mx.Unlock()
}

// GetRecords returns the buffered records along with the current id.  If
// last matches the current id the log has not changed and nil is returned
// immediately, without duplicating records.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	if l.id == last {
		l.mx.Unlock()
		return nil, last
	}
	cnt := l.next
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	index := l.next - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, l.records[index%len(l.records)])
		index++
	}
	id := l.id
	l.mx.Unlock()
	return recs, id
}

// Watch blocks until the log id differs from last, or the expiration
// passes, and returns the then-current id.  An expiration of zero returns
// immediately.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	} else {
		expired = true
	}

	l.mx.Lock()
	l.cvs[cv] = true
	for {
		if l.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(l.cvs, cv)
	if l.id != last {
		last = l.id
	}
	l.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}
