package command

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/realm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterpreter(t *testing.T, scripts map[string]string) (*Interpreter, *realm.Realm, *bytes.Buffer) {
	t.Helper()
	log := logging.FromSlog(slogt.New(t))
	r := realm.New(log)
	var out bytes.Buffer
	opener := func(name string) (io.ReadCloser, error) {
		src, ok := scripts[name]
		if !ok {
			return nil, fs.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(src)), nil
	}
	return New(r, &out, log, WithOpener(opener)), r, &out
}

// results drops the echoed command lines.
func results(out *bytes.Buffer) []string {
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if !strings.HasPrefix(l, "> ") {
			lines = append(lines, l)
		}
	}
	return lines
}

const cornerScript = `
# three towns around a corner
add_town o "Origin" (0,0) 100
add_town n "North Town" ( 0 , 10 ) 20
add_town ne "North East" (10,10) 30
add_road o n
add_road n ne
add_vassalship n o
add_vassalship ne n
shortest_route o ne
least_towns_route ne o
taxer_path ne
total_net_tax n
town_count
`

func TestRunScript(t *testing.T) {
	in, r, out := newTestInterpreter(t, nil)

	require.NoError(t, in.Run(context.Background(), strings.NewReader(cornerScript), "corner"))

	assert.Equal(t, 3, r.TownCount())
	assert.Equal(t, "North Town", r.TownName("n"))
	assert.Equal(t, []string{
		"OK", "OK", "OK", "OK", "OK", "OK", "OK",
		"o -> n -> ne (length 20)",
		"ne -> n -> o",
		"ne -> n -> o",
		"21",
		"3",
	}, results(out))
	assert.Contains(t, out.String(), "> shortest_route o ne\n")
}

func TestQueriesAndSentinels(t *testing.T) {
	ctx := context.Background()
	in, _, out := newTestInterpreter(t, nil)
	require.NoError(t, in.Run(ctx, strings.NewReader(cornerScript), "corner"))
	out.Reset()

	for _, line := range []string{
		"town_name ghost",
		"town_coordinates ghost",
		"town_tax ghost",
		"town_vassals ghost",
		"any_route o ghost",
		"road_cycle_route o",
		"town_coordinates ne",
		"find_towns \"North East\"",
		"towns_nearest (10,9)",
		"min_distance",
		"add_town o \"Again\" (1,1) 1",
		"add_road o o",
	} {
		require.NoError(t, in.Exec(ctx, line), line)
	}

	assert.Equal(t, []string{
		"!!NO_NAME!!",
		"NO_COORD",
		"NO_VALUE",
		"----------",
		"----------",
		"(no route)",
		"(10,10)",
		`ne "North East" (10,10)`,
		`ne "North East" (10,10)`,
		`n "North Town" (0,10)`,
		`o "Origin" (0,0)`,
		`o "Origin" (0,0)`,
		`Failed: town already exists: "o"`,
		`Failed: road endpoints must differ: "o"`,
	}, results(out))
}

func TestExecErrors(t *testing.T) {
	ctx := context.Background()
	in, r, _ := newTestInterpreter(t, nil)

	assert.NoError(t, in.Exec(ctx, ""))
	assert.NoError(t, in.Exec(ctx, "   # just a comment"))

	assert.ErrorIs(t, in.Exec(ctx, "fly_to_moon"), ErrUnknownCommand)
	for _, cmd := range []string{"perftest", "random_add 10", "random_seed 1", "random_roads"} {
		assert.ErrorIs(t, in.Exec(ctx, cmd), ErrNotImplemented, cmd)
	}
	for _, line := range []string{
		`add_town a "A" (1,2)`,
		`add_town a "A" (1,x) 3`,
		`add_town a "A" 1,2 3`,
		`add_town a "A (1,2) 3`,
		`add_town a "A" (1,2 3`,
		`add_town a "A" (1,2) 3 extra`,
		`add_road a`,
		`town_count now`,
	} {
		assert.ErrorIs(t, in.Exec(ctx, line), ErrBadArguments, line)
	}
	assert.Zero(t, r.TownCount())
}

func TestRunStopsAtFirstError(t *testing.T) {
	in, r, _ := newTestInterpreter(t, nil)
	script := "add_town a \"A\" (0,0) 1\nbogus\nadd_town b \"B\" (0,0) 1\n"

	err := in.Run(context.Background(), strings.NewReader(script), "s.txt")
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "s.txt:2")
	assert.Equal(t, 1, r.TownCount())
}

func TestReadNestedScripts(t *testing.T) {
	scripts := map[string]string{
		"towns.txt": "add_town a \"A\" (0,0) 1\nadd_town b \"B\" (3,4) 1\n",
		"main.txt":  "read towns.txt\nadd_road a b\nread roads.txt\n",
		"roads.txt": "all_roads\n",
		"loop.txt":  "town_count\nread loop2.txt\n",
		"loop2.txt": "read loop.txt\n",
	}
	ctx := context.Background()

	t.Run("nested", func(t *testing.T) {
		in, r, out := newTestInterpreter(t, scripts)
		require.NoError(t, in.RunFile(ctx, "main.txt"))
		assert.Equal(t, 2, r.TownCount())
		assert.Equal(t, []string{"OK", "OK", "OK", "a b"}, results(out))
	})

	t.Run("same script twice in sequence is fine", func(t *testing.T) {
		in, r, _ := newTestInterpreter(t, scripts)
		require.NoError(t, in.Exec(ctx, "read roads.txt"))
		require.NoError(t, in.Exec(ctx, "read roads.txt"))
		assert.Zero(t, r.TownCount())
	})

	t.Run("cycle", func(t *testing.T) {
		in, _, _ := newTestInterpreter(t, scripts)
		assert.ErrorIs(t, in.RunFile(ctx, "loop.txt"), ErrScriptCycle)
	})

	t.Run("missing", func(t *testing.T) {
		in, _, _ := newTestInterpreter(t, scripts)
		assert.ErrorIs(t, in.Exec(ctx, "read nowhere.txt"), fs.ErrNotExist)
	})
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize(`add_town  T1 "Big  City" ( -3 ,4 )   12`)
	require.NoError(t, err)
	assert.Equal(t, []string{"add_town", "T1", "Big  City", "(-3,4)", "12"}, toks)

	c, ok := parseCoord("(-3,4)")
	require.True(t, ok)
	assert.Equal(t, -3, c.X)
	assert.Equal(t, 4, c.Y)

	_, ok = parseCoord("(3;4)")
	assert.False(t, ok)
}

func TestCommandsCoverRealmSurface(t *testing.T) {
	names := Commands()
	for _, want := range []string{
		"add_town", "remove_town", "add_vassalship", "total_net_tax",
		"add_road", "shortest_route", "road_cycle_route", "trim_road_network", "read",
	} {
		assert.Contains(t, names, want)
	}
}
