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

package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/mpsvisor/mpsvisor/mpsvisor/util"
	"github.com/mpsvisor/mpsvisor/rest"
)

type InfoPanel struct {
	text *views.TextArea
	info *rest.DeviceInfo
	id   int   // device id
	err  error // last error retrieving state

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}
	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog()
				return true
			case 'S', 's':
				if info != nil && !info.Running {
					app.StartDevice(info.ID)
					return true
				}
			case 'K', 'k':
				if info != nil && info.Running {
					app.StopDevice(info, false)
					return true
				}
			case 'C', 'c':
				if info != nil && info.Running {
					app.StopDevice(info, true)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetDevice(id int) {
	p.id = id
}

// update must be called with AppLock held.
func (p *InfoPanel) update() {

	d, e := p.App().GetItem(p.id)

	if p.info == d && p.err == e {
		return
	}
	p.info = d
	p.err = e
	words := []string{"[ESC] Main", "[H] Help"}

	p.Panel.SetTitle(fmt.Sprintf("Details for device %d", p.id))

	if d == nil {
		if p.err != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", p.err))
			p.SetError()
		} else {
			p.SetStatus("Loading...")
			p.SetNormal()
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetStatus("")
	if d.Running {
		p.SetGood()
	} else {
		p.SetNormal()
	}

	lines := make([]string, 0, 8)
	lines = append(lines, fmt.Sprintf("%13s %d", "Device:", d.ID))
	lines = append(lines, fmt.Sprintf("%13s %s", "Name:", d.Name))
	lines = append(lines, fmt.Sprintf("%13s %s", "Capability:", d.Capability))
	lines = append(lines, fmt.Sprintf("%13s %s", "Status:", util.Status(d)))
	if d.Running {
		lines = append(lines, fmt.Sprintf("%13s %d", "Pid:", d.Pid))
		lines = append(lines, fmt.Sprintf("%13s %s", "Pipe dir:", d.PipeDir))
	}

	p.text.SetLines(lines)

	words = append(words, "[L] Log")
	if d.Running {
		words = append(words, "[K] Stop")
		words = append(words, "[C] Clean Stop")
	} else {
		words = append(words, "[S] Start")
	}
	p.SetKeys(words)
}
