package dataload

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rupeelab/backtest/internal/domain"
)

// Basket is a named list of symbols to run.
type Basket struct {
	Name    string
	Symbols []string
}

// LoadBasket parses a basket file: one symbol per line, blank lines
// and '#' comments ignored, duplicates removed keeping first
// occurrence. The basket name is the file name without extension.
func LoadBasket(path string) (*Basket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewConfigError("open basket %s: %s", path, err)
	}
	defer f.Close()

	b := &Basket{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		sym := strings.ToUpper(strings.TrimSpace(line))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		b.Symbols = append(b.Symbols, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, domain.NewConfigError("read basket %s: %s", path, err)
	}
	if len(b.Symbols) == 0 {
		return nil, domain.NewConfigError("basket %s lists no symbols", path)
	}
	return b, nil
}
