package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"tagstation/internal/catalog"
	"tagstation/internal/station"
)

const timeLayout = "2006-01-02 15:04:05"

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// quantityFormatter renders composition quantities with the configured
// locale's decimal separator.
type quantityFormatter struct {
	printer *message.Printer
}

func newQuantityFormatter(locale string) quantityFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.German
	}
	return quantityFormatter{printer: message.NewPrinter(tag)}
}

func (f quantityFormatter) format(quantity float64) string {
	return f.printer.Sprint(number.Decimal(quantity, number.MaxFractionDigits(3)))
}

func formatBottle(id *catalog.BottleID) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(int64(*id), 10)
}

func formatLocalTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

// pollProgress prints one dot per empty poll on terminals.
type pollProgress struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	dots    int
}

func newPollProgress(out io.Writer) *pollProgress {
	return &pollProgress{out: out, enabled: isTerminal(out)}
}

func (p *pollProgress) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	if p.dots == 0 {
		fmt.Fprint(p.out, "Waiting for card ")
	}
	fmt.Fprint(p.out, ".")
	p.dots++
}

func (p *pollProgress) transition(from, _ station.State, _ station.Session) {
	if from == station.StateAwaitCard {
		p.finishLine()
	}
}

func (p *pollProgress) finishLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dots > 0 {
		fmt.Fprintln(p.out)
		p.dots = 0
	}
}
