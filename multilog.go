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
	"log"
	"strings"
	"sync"
)

// MultiLogger fans a single log.Logger front end out to any number of
// registered destination loggers.  It works by implementing io.Writer,
// splitting the input into lines and delivering each line to every
// destination.  Destinations keep their own prefixes and flags.
type MultiLogger struct {
	log     *log.Logger
	loggers []*log.Logger
	mx      sync.Mutex
}

// NewMultiLogger returns a MultiLogger with no destinations; writes are
// discarded until AddLogger is called.
func NewMultiLogger() *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, "", 0)
	return m
}

// Logger returns the front end logger callers should emit through.
func (m *MultiLogger) Logger() *log.Logger {
	return m.log
}

// Write delivers each input line to every registered destination.  The
// input is newline delimited text, whole lines at a time, which is the
// contract log.Logger honors for its output writer.
func (m *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	m.mx.Lock()
	for _, line := range lines {
		for _, logger := range m.loggers {
			logger.Println(line)
		}
	}
	m.mx.Unlock()
	return len(b), nil
}

// AddLogger registers a destination.  A logger already registered is not
// added twice.
func (m *MultiLogger) AddLogger(logger *log.Logger) {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, x := range m.loggers {
		if x == logger {
			return
		}
	}
	m.loggers = append(m.loggers, logger)
}

// DelLogger removes a destination; subsequent writes no longer reach it.
func (m *MultiLogger) DelLogger(logger *log.Logger) {
	m.mx.Lock()
	defer m.mx.Unlock()

	for i, x := range m.loggers {
		if x == logger {
			m.loggers = append(m.loggers[:i], m.loggers[i+1:]...)
			break
		}
	}
}
