package ncp

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog console writer tuned to read like the original
// tool's line-oriented run narrative ("Getting patches from objects...",
// "Generating the linker script...") rather than a structured service log.
var Logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.Kitchen,
	NoColor:    false,
	PartsOrder: []string{"time", "level", "message"},
}).With().Timestamp().Logger()

// Verbose toggles the per-patch/per-symbol dump tables. Set by cmd/ncpatcher
// from the -v flag before any target is processed.
var Verbose bool

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Warn(format string, a ...any) {
	Logger.Warn().Msg(fmt.Sprintf(format, a...))
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

// DumpPatches prints a columnar table of discovered patch records, mirroring
// gatherInfoFromObjects's verbose dump. kind/destAddr/symbol must be
// parallel slices of equal length.
func DumpPatches(kinds, symbols []string, destAddrs []uint32) {
	if !Verbose {
		return
	}
	Logger.Debug().Msg("Discovered patches:")
	for i := range kinds {
		fmt.Printf("    %-10s 0x%08X  %s\n", kinds[i], destAddrs[i], symbols[i])
	}
}

// DumpExternSymbols prints the symbols retained via an EXTERN() linker
// directive, mirroring the verbose dump in gatherInfoFromElf.
func DumpExternSymbols(symbols []string) {
	if !Verbose || len(symbols) == 0 {
		return
	}
	Logger.Debug().Msg("Externally retained symbols:")
	for _, s := range symbols {
		fmt.Printf("    %s\n", s)
	}
}
