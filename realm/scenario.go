package realm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario is returned when a scenario document fails to decode
// or validate. Nothing has been applied to the realm in that case.
var ErrInvalidScenario = errors.New("invalid scenario")

// Format selects the scenario document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension; anything that is
// not .yaml or .yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Scenario summarises what LoadScenario applied.
type Scenario struct {
	TownIDs     []string
	Vassalships []model.Vassalship
	Roads       []model.Road
}

// internal document shapes; unexported so the file format can evolve.
type scenarioDoc struct {
	Towns       []townDoc       `json:"towns" yaml:"towns" validate:"dive"`
	Vassalships []vassalshipDoc `json:"vassalships" yaml:"vassalships" validate:"dive"`
	Roads       []roadDoc       `json:"roads" yaml:"roads" validate:"dive"`
}

type townDoc struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name" validate:"required"`
	X    int    `json:"x" yaml:"x"`
	Y    int    `json:"y" yaml:"y"`
	Tax  int    `json:"tax" yaml:"tax"`
}

type vassalshipDoc struct {
	Vassal string `json:"vassal" yaml:"vassal" validate:"required"`
	Master string `json:"master" yaml:"master" validate:"required,nefield=Vassal"`
}

type roadDoc struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required,nefield=From"`
}

var scenarioValidate = validator.New()

// LoadScenario reads a scenario document from r and applies it to rl:
// towns first, then vassalships, then roads, each in document order. The
// document is decoded, validated and checked against the realm's current
// state before anything is applied, so a rejected document leaves rl
// unchanged. The error names the first entry the realm would refuse.
func LoadScenario(ctx context.Context, rl *Realm, r io.Reader, format Format) (*Scenario, error) {
	if rl == nil {
		return nil, errors.New("LoadScenario: realm is nil")
	}
	ctx, span := rl.tracer.Start(ctx, "realm.load_scenario")
	defer span.End()
	ctx, log := logging.WithQueryLogger(ctx, rl.log)

	doc, err := decodeScenario(r, format)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := rl.checkScenario(doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "scenario rejected", logging.Err(err))
		return nil, err
	}

	result := &Scenario{
		TownIDs:     make([]string, 0, len(doc.Towns)),
		Vassalships: make([]model.Vassalship, 0, len(doc.Vassalships)),
		Roads:       make([]model.Road, 0, len(doc.Roads)),
	}

	fail := func(err error) (*Scenario, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "scenario load aborted", logging.Err(err))
		return nil, err
	}

	for i, t := range doc.Towns {
		if err := rl.AddTown(t.ID, t.Name, model.Coord{X: t.X, Y: t.Y}, t.Tax); err != nil {
			return fail(fmt.Errorf("town %d: %w", i, err))
		}
		result.TownIDs = append(result.TownIDs, t.ID)
	}
	for i, v := range doc.Vassalships {
		if err := rl.AddVassalship(v.Vassal, v.Master); err != nil {
			return fail(fmt.Errorf("vassalship %d: %w", i, err))
		}
		result.Vassalships = append(result.Vassalships, model.Vassalship{Vassal: v.Vassal, Master: v.Master})
	}
	for i, rd := range doc.Roads {
		if err := rl.AddRoad(rd.From, rd.To); err != nil {
			return fail(fmt.Errorf("road %d: %w", i, err))
		}
		result.Roads = append(result.Roads, model.NewRoad(rd.From, rd.To))
	}

	span.SetAttributes(
		attribute.Int("realm.scenario.towns", len(result.TownIDs)),
		attribute.Int("realm.scenario.vassalships", len(result.Vassalships)),
		attribute.Int("realm.scenario.roads", len(result.Roads)),
	)
	log.Info(ctx, "scenario loaded",
		logging.String("format", string(format)),
		logging.Int("towns", len(result.TownIDs)),
		logging.Int("vassalships", len(result.Vassalships)),
		logging.Int("roads", len(result.Roads)),
	)
	return result, nil
}

// checkScenario replays doc against rl without changing it and returns the
// error the first refused entry would produce.
func (rl *Realm) checkScenario(doc *scenarioDoc) error {
	added := make(map[string]bool, len(doc.Towns))
	exists := func(id string) bool {
		if added[id] {
			return true
		}
		_, ok := rl.store.Lookup(id)
		return ok
	}

	for i, t := range doc.Towns {
		if exists(t.ID) {
			return fmt.Errorf("town %d: %w: %q", i, ErrTownExists, t.ID)
		}
		added[t.ID] = true
	}

	masters := make(map[string]string, len(doc.Vassalships))
	masterOf := func(id string) string {
		if m, ok := masters[id]; ok {
			return m
		}
		m, _ := rl.forest.Master(id)
		return m
	}
	for i, v := range doc.Vassalships {
		switch {
		case !exists(v.Vassal):
			return fmt.Errorf("vassalship %d: %w: %q", i, ErrTownNotFound, v.Vassal)
		case masterOf(v.Vassal) != "":
			return fmt.Errorf("vassalship %d: %w: %q", i, ErrVassalHasMaster, v.Vassal)
		case !exists(v.Master):
			return fmt.Errorf("vassalship %d: %w: %q", i, ErrTownNotFound, v.Master)
		case rl.cycleGuard && onMasterChain(masterOf, v.Master, v.Vassal):
			return fmt.Errorf("vassalship %d: %w: %q under %q", i, ErrVassalCycle, v.Vassal, v.Master)
		}
		masters[v.Vassal] = v.Master
	}

	roads := make(map[model.Road]bool, len(doc.Roads))
	for i, rd := range doc.Roads {
		for _, id := range []string{rd.From, rd.To} {
			if !exists(id) {
				return fmt.Errorf("road %d: %w: %q", i, ErrTownNotFound, id)
			}
		}
		road := model.NewRoad(rd.From, rd.To)
		if roads[road] || rl.hasRoad(rd.From, rd.To) {
			return fmt.Errorf("road %d: %w: %s-%s", i, ErrRoadExists, road.A, road.B)
		}
		roads[road] = true
	}
	return nil
}

// onMasterChain reports whether target is start or one of its masters.
func onMasterChain(masterOf func(string) string, start, target string) bool {
	seen := make(map[string]bool)
	for cur := start; cur != "" && !seen[cur]; cur = masterOf(cur) {
		if cur == target {
			return true
		}
		seen[cur] = true
	}
	return false
}

func (rl *Realm) hasRoad(a, b string) bool {
	neighbors, err := rl.roads.Neighbors(a)
	return err == nil && slices.Contains(neighbors, b)
}

func decodeScenario(r io.Reader, format Format) (*scenarioDoc, error) {
	var doc scenarioDoc
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidScenario, err)
		}
	case FormatJSON, "":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidScenario, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidScenario, format)
	}

	if err := scenarioValidate.Struct(&doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return nil, fmt.Errorf("%w: %s fails %q", ErrInvalidScenario, first.Namespace(), first.Tag())
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return &doc, nil
}
