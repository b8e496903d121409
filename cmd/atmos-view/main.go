// Package main - atmos-view
// Terminal viewer for station atmospherics: pressure per tile, devices
// and air alarm levels, either from a running server or a local engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

type viewer struct {
	source   Source
	renderer *Renderer
	refresh  time.Duration
}

func main() {
	serverURL := flag.String("url", "http://localhost:8080", "server base URL")
	grid := flag.String("grid", "station", "grid to show")
	local := flag.Bool("local", false, "run an in-process engine instead of polling a server")
	preset := flag.String("preset", "default", "config preset for -local")
	mapName := flag.String("map", "default", "embedded map for -local")
	refresh := flag.Duration("refresh", 250*time.Millisecond, "redraw interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var source Source
	if *local {
		ls, err := newLocalSource(ctx, *preset, *mapName)
		if err != nil {
			log.Fatalf("local engine: %v", err)
		}
		defer ls.Stop()
		source = ls
	} else {
		source = newRemoteSource(*serverURL, *grid)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	v := &viewer{
		source:   source,
		renderer: &Renderer{screen: screen, cursor: tile.Vector2i{X: 3, Y: 5}},
		refresh:  *refresh,
	}
	v.run(ctx)
}

func (v *viewer) run(ctx context.Context) {
	ticker := time.NewTicker(v.refresh)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.renderer.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	var last Frame
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventChan:
			if !v.handleInput(ev) {
				return
			}
			v.renderer.Draw(last, v.source.Name())
		case <-ticker.C:
			frameCtx, cancel := context.WithTimeout(ctx, v.refresh*4)
			f, err := v.source.Frame(frameCtx)
			cancel()
			if err != nil {
				v.renderer.status = err.Error()
			} else {
				last = f
				if v.renderer.status != "" && v.renderer.status[0] != '!' {
					v.renderer.status = ""
				}
			}
			v.renderer.Draw(last, v.source.Name())
		}
	}
}

// handleInput returns false when the viewer should exit.
func (v *viewer) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			v.renderer.cursor.Y++
		case tcell.KeyDown:
			v.renderer.cursor.Y--
		case tcell.KeyLeft:
			v.renderer.cursor.X--
		case tcell.KeyRight:
			v.renderer.cursor.X++
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case 'x':
				at := v.renderer.cursor
				if err := v.source.Breach(at); err != nil {
					v.renderer.status = "! " + err.Error()
				} else {
					v.renderer.status = fmt.Sprintf("! breached (%d,%d)", at.X, at.Y)
				}
			}
		}
	case *tcell.EventResize:
		v.renderer.screen.Sync()
	}
	return true
}
