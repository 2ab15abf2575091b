// Package command runs realm scripts: one command per line, '#' starts a
// comment line.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/model"
	"github.com/signalsfoundry/realm/realm"
)

var (
	// ErrUnknownCommand is returned for a command word nobody handles.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotImplemented is returned for commands that exist in the command
	// language but are intentionally not provided.
	ErrNotImplemented = errors.New("not implemented")
	// ErrBadArguments is returned when a command's arguments do not parse.
	ErrBadArguments = errors.New("bad arguments")
	// ErrScriptCycle is returned when a script reads itself, directly or
	// through other scripts.
	ErrScriptCycle = errors.New("script reads itself")
)

// Opener opens a script named by a read command.
type Opener func(name string) (io.ReadCloser, error)

// Interpreter executes commands against a realm and writes their results.
type Interpreter struct {
	realm *realm.Realm
	out   io.Writer
	log   logging.Logger
	open  Opener

	reading map[string]bool
}

// Option customises an Interpreter.
type Option func(*Interpreter)

// WithOpener replaces os.Open for read commands.
func WithOpener(open Opener) Option {
	return func(in *Interpreter) {
		in.open = open
	}
}

// New returns an interpreter that writes results to out.
func New(r *realm.Realm, out io.Writer, log logging.Logger, opts ...Option) *Interpreter {
	if log == nil {
		log = logging.Noop()
	}
	in := &Interpreter{
		realm:   r,
		out:     out,
		log:     log,
		open:    func(name string) (io.ReadCloser, error) { return os.Open(name) },
		reading: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in
}

type handler func(in *Interpreter, ctx context.Context, a *argList) error

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"town_count":                (*Interpreter).townCount,
		"clear_all":                 (*Interpreter).clearAll,
		"add_town":                  (*Interpreter).addTown,
		"town_name":                 (*Interpreter).townName,
		"town_coordinates":          (*Interpreter).townCoordinates,
		"town_tax":                  (*Interpreter).townTax,
		"all_towns":                 (*Interpreter).allTowns,
		"find_towns":                (*Interpreter).findTowns,
		"change_town_name":          (*Interpreter).changeTownName,
		"towns_alphabetically":      (*Interpreter).townsAlphabetically,
		"towns_distance_increasing": (*Interpreter).townsDistanceIncreasing,
		"towns_nearest":             (*Interpreter).townsNearest,
		"min_distance":              (*Interpreter).minDistance,
		"max_distance":              (*Interpreter).maxDistance,
		"add_vassalship":            (*Interpreter).addVassalship,
		"town_vassals":              (*Interpreter).townVassals,
		"taxer_path":                (*Interpreter).taxerPath,
		"remove_town":               (*Interpreter).removeTown,
		"longest_vassal_path":       (*Interpreter).longestVassalPath,
		"total_net_tax":             (*Interpreter).totalNetTax,
		"clear_roads":               (*Interpreter).clearRoads,
		"all_roads":                 (*Interpreter).allRoads,
		"add_road":                  (*Interpreter).addRoad,
		"roads_from":                (*Interpreter).roadsFrom,
		"remove_road":               (*Interpreter).removeRoad,
		"any_route":                 (*Interpreter).anyRoute,
		"least_towns_route":         (*Interpreter).leastTownsRoute,
		"road_cycle_route":          (*Interpreter).roadCycleRoute,
		"shortest_route":            (*Interpreter).shortestRoute,
		"trim_road_network":         (*Interpreter).trimRoadNetwork,
		"read":                      (*Interpreter).read,

		"perftest":     notImplemented,
		"random_add":   notImplemented,
		"random_seed":  notImplemented,
		"random_roads": notImplemented,
	}
}

// Commands returns the names of every command the interpreter accepts.
func Commands() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	return names
}

// Exec runs a single command line. Blank lines and comments are ignored.
// A command the realm refuses is reported in the output and is not an
// error; malformed or unknown commands are.
func (in *Interpreter) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	toks, err := tokenize(line)
	if err != nil {
		return err
	}
	h, ok := handlers[toks[0]]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, toks[0])
	}
	in.printf("> %s\n", line)
	return h(in, ctx, &argList{cmd: toks[0], toks: toks[1:]})
}

// Run executes every line of src and stops at the first error. name labels
// error messages.
func (in *Interpreter) Run(ctx context.Context, src io.Reader, name string) error {
	sc := bufio.NewScanner(src)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := in.Exec(ctx, sc.Text()); err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RunFile executes the script at path.
func (in *Interpreter) RunFile(ctx context.Context, path string) error {
	key := filepath.Clean(path)
	if in.reading[key] {
		return fmt.Errorf("%w: %s", ErrScriptCycle, path)
	}
	f, err := in.open(path)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	in.reading[key] = true
	defer delete(in.reading, key)

	in.log.Debug(ctx, "running script", logging.String("script", path))
	return in.Run(ctx, f, path)
}

func notImplemented(_ *Interpreter, _ context.Context, a *argList) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, a.cmd)
}

func (in *Interpreter) printf(format string, args ...any) {
	fmt.Fprintf(in.out, format, args...)
}

// report prints the outcome of a mutation.
func (in *Interpreter) report(err error) error {
	if err != nil {
		in.printf("Failed: %v\n", err)
		return nil
	}
	in.printf("OK\n")
	return nil
}

func (in *Interpreter) printInt(v int) {
	if v == model.NoValue {
		in.printf("NO_VALUE\n")
		return
	}
	in.printf("%d\n", v)
}

// printTowns prints one town per line with its name and position.
func (in *Interpreter) printTowns(ids []string) {
	if len(ids) == 0 {
		in.printf("(none)\n")
		return
	}
	for _, id := range ids {
		in.printTown(id)
	}
}

func (in *Interpreter) printTown(id string) {
	if id == model.NoTownID {
		in.printf("%s\n", model.NoTownID)
		return
	}
	c := in.realm.TownCoordinates(id)
	in.printf("%s %q (%d,%d)\n", id, in.realm.TownName(id), c.X, c.Y)
}

func (in *Interpreter) printRoute(route []string, withLength bool) {
	switch {
	case len(route) == 0:
		in.printf("(no route)\n")
	case len(route) == 1 && route[0] == model.NoTownID:
		in.printf("%s\n", model.NoTownID)
	case withLength:
		in.printf("%s (length %d)\n", strings.Join(route, " -> "), in.realm.RouteLength(route))
	default:
		in.printf("%s\n", strings.Join(route, " -> "))
	}
}
