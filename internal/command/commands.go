package command

import (
	"context"
	"path/filepath"

	"github.com/signalsfoundry/realm/model"
)

func (in *Interpreter) townCount(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printf("%d\n", in.realm.TownCount())
	return nil
}

func (in *Interpreter) clearAll(ctx context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.realm.ClearAll(ctx)
	return in.report(nil)
}

// add_town ID "Name" (x,y) tax
func (in *Interpreter) addTown(_ context.Context, a *argList) error {
	id, err := a.id()
	if err != nil {
		return err
	}
	name, err := a.text("name")
	if err != nil {
		return err
	}
	coord, err := a.coord()
	if err != nil {
		return err
	}
	tax, err := a.integer("tax")
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	return in.report(in.realm.AddTown(id, name, coord, tax))
}

func (in *Interpreter) townName(_ context.Context, a *argList) error {
	id, err := a.id()
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	in.printf("%s\n", in.realm.TownName(id))
	return nil
}

func (in *Interpreter) townCoordinates(_ context.Context, a *argList) error {
	id, err := a.id()
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	c := in.realm.TownCoordinates(id)
	if c == model.NoCoord {
		in.printf("NO_COORD\n")
		return nil
	}
	in.printf("(%d,%d)\n", c.X, c.Y)
	return nil
}

func (in *Interpreter) townTax(_ context.Context, a *argList) error {
	id, err := a.id()
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	in.printInt(in.realm.TownTax(id))
	return nil
}

func (in *Interpreter) allTowns(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printTowns(in.realm.AllTowns())
	return nil
}

func (in *Interpreter) findTowns(_ context.Context, a *argList) error {
	name, err := a.text("name")
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	in.printTowns(in.realm.FindTowns(name))
	return nil
}

func (in *Interpreter) changeTownName(_ context.Context, a *argList) error {
	id, err := a.id()
	if err != nil {
		return err
	}
	name, err := a.text("name")
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	return in.report(in.realm.ChangeTownName(id, name))
}

func (in *Interpreter) townsAlphabetically(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printTowns(in.realm.TownsAlphabetically())
	return nil
}

func (in *Interpreter) townsDistanceIncreasing(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printTowns(in.realm.TownsDistanceIncreasing())
	return nil
}

func (in *Interpreter) townsNearest(_ context.Context, a *argList) error {
	c, err := a.coord()
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	in.printTowns(in.realm.TownsNearest(c))
	return nil
}

func (in *Interpreter) minDistance(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printTown(in.realm.MinDistance())
	return nil
}

func (in *Interpreter) maxDistance(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printTown(in.realm.MaxDistance())
	return nil
}

func (in *Interpreter) addVassalship(_ context.Context, a *argList) error {
	vassal, master, err := twoIDs(a)
	if err != nil {
		return err
	}
	return in.report(in.realm.AddVassalship(vassal, master))
}

func (in *Interpreter) townVassals(_ context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printTowns(in.realm.TownVassals(id))
	return nil
}

func (in *Interpreter) taxerPath(_ context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.TaxerPath(id), false)
	return nil
}

func (in *Interpreter) removeTown(ctx context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	return in.report(in.realm.RemoveTown(ctx, id))
}

func (in *Interpreter) longestVassalPath(_ context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.LongestVassalPath(id), false)
	return nil
}

func (in *Interpreter) totalNetTax(_ context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printInt(in.realm.TotalNetTax(id))
	return nil
}

func (in *Interpreter) clearRoads(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.realm.ClearRoads()
	return in.report(nil)
}

func (in *Interpreter) allRoads(_ context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	roads := in.realm.AllRoads()
	if len(roads) == 0 {
		in.printf("(none)\n")
		return nil
	}
	for _, r := range roads {
		in.printf("%s %s\n", r.A, r.B)
	}
	return nil
}

func (in *Interpreter) addRoad(_ context.Context, a *argList) error {
	x, y, err := twoIDs(a)
	if err != nil {
		return err
	}
	return in.report(in.realm.AddRoad(x, y))
}

func (in *Interpreter) roadsFrom(_ context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printTowns(in.realm.RoadsFrom(id))
	return nil
}

func (in *Interpreter) removeRoad(_ context.Context, a *argList) error {
	x, y, err := twoIDs(a)
	if err != nil {
		return err
	}
	return in.report(in.realm.RemoveRoad(x, y))
}

func (in *Interpreter) anyRoute(ctx context.Context, a *argList) error {
	from, to, err := twoIDs(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.AnyRoute(ctx, from, to), false)
	return nil
}

func (in *Interpreter) leastTownsRoute(ctx context.Context, a *argList) error {
	from, to, err := twoIDs(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.LeastTownsRoute(ctx, from, to), false)
	return nil
}

func (in *Interpreter) roadCycleRoute(ctx context.Context, a *argList) error {
	id, err := oneID(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.RoadCycleRoute(ctx, id), false)
	return nil
}

func (in *Interpreter) shortestRoute(ctx context.Context, a *argList) error {
	from, to, err := twoIDs(a)
	if err != nil {
		return err
	}
	in.printRoute(in.realm.ShortestRoute(ctx, from, to), true)
	return nil
}

func (in *Interpreter) trimRoadNetwork(ctx context.Context, a *argList) error {
	if err := a.end(); err != nil {
		return err
	}
	in.printf("%d\n", in.realm.TrimRoadNetwork(ctx))
	return nil
}

// read FILE runs another script. Relative paths are taken as given.
func (in *Interpreter) read(ctx context.Context, a *argList) error {
	path, err := a.text("file name")
	if err != nil {
		return err
	}
	if err := a.end(); err != nil {
		return err
	}
	return in.RunFile(ctx, filepath.Clean(path))
}

func oneID(a *argList) (string, error) {
	id, err := a.id()
	if err != nil {
		return "", err
	}
	return id, a.end()
}

func twoIDs(a *argList) (string, string, error) {
	x, err := a.id()
	if err != nil {
		return "", "", err
	}
	y, err := a.id()
	if err != nil {
		return "", "", err
	}
	return x, y, a.end()
}
