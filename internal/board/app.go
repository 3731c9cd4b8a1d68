package board

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"pdfpro/api/internal/discovery"
	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/export"
	"pdfpro/api/internal/render"
	"pdfpro/api/internal/util"
	"pdfpro/api/internal/workspace"
)

type Options struct {
	Width        int
	Height       int
	HistoryLimit int
	EraserColor  string
	// File holds the workspace between runs. It is created on first save.
	File string
}

// Document is a local workspace file opened in an editor loop.
type Document struct {
	board      *Board
	compositor *render.Compositor
	fetch      render.Fetcher
	file       string
	log        zerolog.Logger

	mu     sync.Mutex
	extras workspace.State
}

// Open loads the workspace file, or starts a fresh one when it does not
// exist yet.
func Open(opts Options, log zerolog.Logger) (*Document, error) {
	state, err := loadFile(opts.File)
	if err != nil {
		return nil, err
	}

	fetch := render.SchemeFetcher{
		"http":  render.HTTPFetcher{},
		"https": render.HTTPFetcher{},
	}
	cache := render.NewImageCache(fetch, render.WithCacheLogger(log))
	compositor := render.NewCompositor(opts.Width, opts.Height, cache, log)
	ed := editor.New(editor.Config{
		Width:        opts.Width,
		Height:       opts.Height,
		HistoryLimit: opts.HistoryLimit,
		EraserColor:  opts.EraserColor,
	}, compositor, editor.WithLogger(log))
	ed.Restore(state.Snapshot())

	doc := &Document{
		board:      NewBoard(ed, log),
		compositor: compositor,
		fetch:      fetch,
		file:       opts.File,
		log:        log,
		extras:     state,
	}
	return doc, nil
}

func loadFile(path string) (workspace.State, error) {
	if path == "" {
		return workspace.Fresh(util.NewID("layer"), time.Now()), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return workspace.Fresh(util.NewID("layer"), time.Now()), nil
	}
	if err != nil {
		return workspace.State{}, fmt.Errorf("read workspace: %w", err)
	}
	return workspace.Decode(raw)
}

func (d *Document) Board() *Board { return d.board }

// State captures the canvas together with the notes and tasks read from the
// file, which the desktop board does not edit.
func (d *Document) State(ctx context.Context) (workspace.State, error) {
	d.mu.Lock()
	state := d.extras
	d.mu.Unlock()
	err := d.board.Loop().Do(ctx, func(ed *editor.Editor) error {
		state = state.WithSnapshot(ed.Snapshot())
		return nil
	})
	state.UpdatedAt = time.Now().UTC()
	return state, err
}

func (d *Document) Save(ctx context.Context) error {
	if d.file == "" {
		return nil
	}
	state, err := d.State(ctx)
	if err != nil {
		return err
	}
	raw, err := workspace.Encode(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.file, raw, 0o644); err != nil {
		return fmt.Errorf("write workspace: %w", err)
	}
	d.log.Info().Str("file", d.file).Int("layers", len(state.Layers)).Msg("workspace saved")
	return nil
}

// Export renders the document in format.
func (d *Document) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	state, err := d.State(ctx)
	if err != nil {
		return nil, err
	}
	svc := export.NewService(d.compositor, d.fetch, d.log)
	return svc.Export(ctx, export.Request{
		Title:  "Board",
		Format: format,
		State:  state,
	})
}

func (d *Document) Close() { d.board.Loop().Close() }

// Run opens the window and blocks until it is closed.
func Run(opts Options, log zerolog.Logger) error {
	doc, err := Open(opts, log)
	if err != nil {
		return err
	}
	defer doc.Close()

	a := fyneapp.New()
	w := a.NewWindow("PDFPro Board")
	w.Resize(fyne.NewSize(float32(opts.Width), float32(opts.Height)+90))

	status := widget.NewLabel("")
	setStatus := func(msg string) { fyne.Do(func() { status.SetText(msg) }) }

	lc := newLayerControls(doc.board)
	doc.board.SetOnChanged(func(c editor.Change) {
		if c.Reason == editor.ReasonImage {
			return
		}
		setStatus(fmt.Sprintf("history %d/%d", c.HistoryIndex+1, c.HistoryLen))
	})

	save := func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := doc.Save(ctx); err != nil {
				fyne.Do(func() { dialog.ShowError(err, w) })
				return
			}
			setStatus("saved " + doc.file)
		}()
	}
	exportTo := func(format export.Format) func() {
		return func() {
			d := dialog.NewFileSave(func(out fyne.URIWriteCloser, err error) {
				if err != nil || out == nil {
					return
				}
				go func() {
					defer out.Close()
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					res, err := doc.Export(ctx, format)
					if err == nil {
						_, err = out.Write(res.Data)
					}
					if err != nil {
						log.Error().Err(err).Str("format", string(format)).Msg("export failed")
						fyne.Do(func() { dialog.ShowError(err, w) })
						return
					}
					setStatus("exported " + out.URI().Name())
				}()
			}, w)
			d.SetFileName("board." + string(format))
			d.Show()
		}
	}
	discover := func() {
		setStatus("looking for servers...")
		go func() {
			peers, err := discovery.Browse(context.Background(), 2*time.Second)
			if err != nil {
				log.Warn().Err(err).Msg("discovery failed")
			}
			if len(peers) == 0 {
				setStatus("no servers found")
				return
			}
			addrs := make([]string, len(peers))
			for i, p := range peers {
				addrs[i] = p.Addr
			}
			setStatus("servers: " + strings.Join(addrs, ", "))
		}()
	}

	toolbar := newToolbar(doc.board, lc, Actions{
		Save:      save,
		ExportPNG: exportTo(export.FormatPNG),
		ExportPDF: exportTo(export.FormatPDF),
		Discover:  discover,
	})
	w.SetContent(container.NewBorder(toolbar, status, nil, nil, doc.board))
	w.SetCloseIntercept(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := doc.Save(ctx); err != nil {
			log.Error().Err(err).Msg("save on close")
		}
		w.Close()
	})
	lc.sync()
	w.ShowAndRun()
	return nil
}
