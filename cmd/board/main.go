package main

import (
	"flag"
	"os"

	"pdfpro/api/internal/board"
	"pdfpro/api/internal/config"
	"pdfpro/api/internal/logging"
)

func main() {
	cfg := config.Load()
	file := flag.String("file", "board.json", "workspace file to open and save")
	flag.Parse()

	logger := logging.New(os.Stderr, cfg.LogLevel, "console")
	err := board.Run(board.Options{
		Width:        cfg.CanvasWidth,
		Height:       cfg.CanvasHeight,
		HistoryLimit: cfg.HistoryLimit,
		EraserColor:  cfg.EraserColor,
		File:         *file,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("board failed")
	}
}
