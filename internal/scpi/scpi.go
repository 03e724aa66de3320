// Package scpi holds the static measurement-function table and derives
// transport command strings from a function and a selected range.
package scpi

import (
	"sort"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
)

// AutoRange selects the instrument's autoranging mode.
const AutoRange = "AUTO"

// FunctionSpec describes one measurement function. Query is the bare
// measurement command; Configure is the explicit configuration command
// the range token is appended to. Keeping Configure in the table avoids
// deriving it from Query by verb substitution, which is not valid for
// every function's syntax.
type FunctionSpec struct {
	Query       string
	Configure   string
	Unit        string
	Description string
	Ranges      []string
}

var functions = map[string]FunctionSpec{
	"DC Voltage": {
		Query:       "MEAS:VOLT:DC?",
		Configure:   "CONF:VOLT:DC",
		Unit:        "V",
		Description: "Measure DC voltage",
		Ranges:      []string{AutoRange, "0.1", "1", "10", "100", "1000"},
	},
	"AC Voltage": {
		Query:       "MEAS:VOLT:AC?",
		Configure:   "CONF:VOLT:AC",
		Unit:        "V",
		Description: "Measure AC voltage",
		Ranges:      []string{AutoRange, "0.1", "1", "10", "100", "750"},
	},
	"DC Current": {
		Query:       "MEAS:CURR:DC?",
		Configure:   "CONF:CURR:DC",
		Unit:        "A",
		Description: "Measure DC current",
		Ranges:      []string{AutoRange, "0.001", "0.01", "0.1", "1", "3"},
	},
	"AC Current": {
		Query:       "MEAS:CURR:AC?",
		Configure:   "CONF:CURR:AC",
		Unit:        "A",
		Description: "Measure AC current",
		Ranges:      []string{AutoRange, "0.001", "0.01", "0.1", "1", "3"},
	},
	"Resistance (2-wire)": {
		Query:       "MEAS:RES?",
		Configure:   "CONF:RES",
		Unit:        "Ω",
		Description: "Measure resistance (2-wire)",
		Ranges:      []string{AutoRange, "100", "1K", "10K", "100K", "1M", "10M", "100M"},
	},
	"Resistance (4-wire)": {
		Query:       "MEAS:FRES?",
		Configure:   "CONF:FRES",
		Unit:        "Ω",
		Description: "Measure resistance (4-wire)",
		Ranges:      []string{AutoRange, "100", "1K", "10K", "100K", "1M", "10M", "100M"},
	},
	"Frequency": {
		Query:       "MEAS:FREQ?",
		Configure:   "CONF:FREQ",
		Unit:        "Hz",
		Description: "Measure frequency",
		Ranges:      []string{AutoRange, "1", "10", "100", "1K", "10K", "100K", "1M"},
	},
	"Temperature": {
		Query:       "MEAS:TEMP?",
		Configure:   "CONF:TEMP",
		Unit:        "°C",
		Description: "Measure temperature",
		Ranges:      []string{AutoRange, "RTD", "THERMISTOR", "THERMOCOUPLE"},
	},
}

var commonCommands = map[string]string{
	"Reset":              "*RST",
	"Clear Status":       "*CLS",
	"Self Test":          "*TST?",
	"Identification":     "*IDN?",
	"Operation Complete": "*OPC?",
	"Wait":               "*WAI",
}

// IdentifyCommand is the query used to verify a freshly opened session.
const IdentifyCommand = "*IDN?"

// Resolve derives the command string for a function and range. An
// empty or AUTO range yields the bare query command; any other range
// yields the configuration command with the range token appended.
// Resolution is pure and requires no open session.
func Resolve(function, rng string) (string, error) {
	errFactory := errors.New()

	spec, ok := functions[function]
	if !ok {
		return "", errFactory.WithData(errors.ErrUnknownFunction, function)
	}

	if rng == "" || rng == AutoRange {
		return spec.Query, nil
	}

	if !validRange(spec, rng) {
		return "", errFactory.WithData(errors.ErrInvalidRange, struct {
			Function string
			Range    string
		}{function, rng})
	}

	return spec.Configure + " " + rng, nil
}

func validRange(spec FunctionSpec, rng string) bool {
	for _, r := range spec.Ranges {
		if r == rng {
			return true
		}
	}

	return false
}

// UnitFor returns the unit string for a function, or "" when the
// function is unknown.
func UnitFor(function string) string {
	return functions[function].Unit
}

// IsKnownFunction reports whether the function exists in the table.
func IsKnownFunction(function string) bool {
	_, ok := functions[function]
	return ok
}

// Functions returns the measurement function names in sorted order.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// RangesFor returns the selectable ranges for a function. Unknown
// functions yield nil.
func RangesFor(function string) []string {
	spec, ok := functions[function]
	if !ok {
		return nil
	}

	out := make([]string, len(spec.Ranges))
	copy(out, spec.Ranges)

	return out
}

// DescriptionFor returns the human-readable description for a function.
func DescriptionFor(function string) string {
	return functions[function].Description
}

// CommonCommand returns a common command (Reset, Identification, ...)
// by its display name.
func CommonCommand(name string) (string, error) {
	cmd, ok := commonCommands[name]
	if !ok {
		return "", errors.New().WithData(errors.ErrUnknownCommand, name)
	}

	return cmd, nil
}

// CommonCommands returns a copy of the common command table.
func CommonCommands() map[string]string {
	out := make(map[string]string, len(commonCommands))
	for name, cmd := range commonCommands {
		out[name] = cmd
	}

	return out
}
