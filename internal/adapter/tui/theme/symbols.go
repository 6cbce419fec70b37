package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the UI glyphs, switchable between Unicode and ASCII.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Info     string
	ArrowR   string
	Bullet   string
	Ellipsis string
	User     string
	Bot      string
	BarFull  rune
	BarEmpty rune
}

var unicodeSymbols = SymbolSet{
	Success:  "\u2713", // ✓
	Error:    "\u2717", // ✗
	Warning:  "\u26A0", // ⚠
	Info:     "\u25CF", // ●
	ArrowR:   "\u2192", // →
	Bullet:   "\u2022", // •
	Ellipsis: "\u2026", // …
	User:     "You",
	Bot:      "Lumen",
	BarFull:  '\u2588', // █
	BarEmpty: '\u2591', // ░
}

var asciiSymbols = SymbolSet{
	Success:  "[OK]",
	Error:    "[ERR]",
	Warning:  "[!]",
	Info:     "[i]",
	ArrowR:   "->",
	Bullet:   "*",
	Ellipsis: "...",
	User:     "You",
	Bot:      "Lumen",
	BarFull:  '#',
	BarEmpty: '.',
}

// Active glyphs, set by InitSymbols.
var (
	SymbolSuccess  = unicodeSymbols.Success
	SymbolError    = unicodeSymbols.Error
	SymbolWarning  = unicodeSymbols.Warning
	SymbolInfo     = unicodeSymbols.Info
	SymbolArrowR   = unicodeSymbols.ArrowR
	SymbolBullet   = unicodeSymbols.Bullet
	SymbolEllipsis = unicodeSymbols.Ellipsis
	SymbolUser     = unicodeSymbols.User
	SymbolBot      = unicodeSymbols.Bot
	SymbolBarFull  = unicodeSymbols.BarFull
	SymbolBarEmpty = unicodeSymbols.BarEmpty
)

// DetectUnicodeSupport reports whether glyphs should be drawn in Unicode.
// LUMEN_ASCII_SYMBOLS=1 forces ASCII, as does a plain C or POSIX locale.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("LUMEN_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	// LC_ALL overrides LC_CTYPE, which overrides LANG.
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v != "C" && v != "POSIX"
		}
	}
	return true
}

// InitSymbols picks the glyph set. init runs it once; tests call it again
// after changing the environment.
func InitSymbols() {
	set := asciiSymbols
	if DetectUnicodeSupport() {
		set = unicodeSymbols
	}
	SymbolSuccess, SymbolError, SymbolWarning, SymbolInfo = set.Success, set.Error, set.Warning, set.Info
	SymbolArrowR, SymbolBullet, SymbolEllipsis = set.ArrowR, set.Bullet, set.Ellipsis
	SymbolUser, SymbolBot = set.User, set.Bot
	SymbolBarFull, SymbolBarEmpty = set.BarFull, set.BarEmpty
}

func init() { InitSymbols() }
