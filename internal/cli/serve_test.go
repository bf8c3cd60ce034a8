package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvents(t *testing.T, out string) []serveEvent {
	t.Helper()
	var events []serveEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var ev serveEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "line %q", sc.Text())
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func byEvent(events []serveEvent, kind string) []serveEvent {
	var out []serveEvent
	for _, ev := range events {
		if ev.Event == kind {
			out = append(out, ev)
		}
	}
	return out
}

func serveConfig(t *testing.T) (cfgPath, db string) {
	t.Helper()
	tmp := t.TempDir()
	db = filepath.Join(tmp, "sfc.db")
	cfgPath = filepath.Join(tmp, "sfcpath.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 1\n"), 0644))
	return cfgPath, db
}

func TestServe(t *testing.T) {
	cfgPath, db := serveConfig(t)
	dir := writeCatalog(t, exampleCatalogYAML)

	stdin := strings.Join([]string{
		`{"op":"create","chain":{"name":"C1","steps":[{"type":"firewall"},{"type":"nat"}]}}`,
		`{not json`,
		``,
		`{"op":"delete","chain_name":"C1"}`,
	}, "\n") + "\n"

	out, err := execute(t, stdin, "serve", "--config", cfgPath, "--db", db, "--catalog", dir)
	require.NoError(t, err)

	events := decodeEvents(t, out)
	assert.Len(t, byEvent(events, "accepted"), 2)

	rejected := byEvent(events, "rejected")
	require.Len(t, rejected, 1)
	require.NotNil(t, rejected[0].Error)
	assert.Equal(t, CodeCommand, rejected[0].Error.Code)
	assert.Contains(t, rejected[0].Error.Message, "malformed request")

	results := byEvent(events, "result")
	require.Len(t, results, 2)

	create := results[0].Unit
	require.NotNil(t, create)
	assert.Equal(t, "create", create.Op)
	assert.Equal(t, "committed", create.State)
	require.NotNil(t, create.Path)
	assert.Equal(t, "C1-Path", create.Path.Name)
	assert.Equal(t, int64(1), create.Path.PathID)

	del := results[1].Unit
	require.NotNil(t, del)
	assert.Equal(t, "delete", del.Op)
	assert.Equal(t, "committed", del.State)

	// The store reflects both units.
	out, err = execute(t, "", "paths", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No paths.\n", out)
}

func TestServe_InvalidRequest(t *testing.T) {
	cfgPath, db := serveConfig(t)

	out, err := execute(t, `{"op":"create","chain":{"steps":[{"type":"firewall"}]}}`+"\n",
		"serve", "--config", cfgPath, "--db", db)
	require.NoError(t, err)

	events := decodeEvents(t, out)
	require.Len(t, events, 1)
	assert.Equal(t, "rejected", events[0].Event)
	assert.Contains(t, events[0].Error.Message, "chain name is required")
}

func TestServe_FailedUnit(t *testing.T) {
	cfgPath, db := serveConfig(t)

	out, err := execute(t, `{"op":"create","chain":{"name":"C4","steps":[{"type":"dpi"}]}}`+"\n",
		"serve", "--config", cfgPath, "--db", db)
	require.NoError(t, err, "a failed unit does not stop serve")

	results := byEvent(decodeEvents(t, out), "result")
	require.Len(t, results, 1)
	assert.Equal(t, "failed", results[0].Unit.State)
	require.NotNil(t, results[0].Unit.Error)
	assert.Equal(t, "MISSING_FUNCTION_TYPE", results[0].Unit.Error.Code)
}

func TestServe_MetricsServer(t *testing.T) {
	cfgPath, db := serveConfig(t)

	out, err := execute(t, "", "serve", "--config", cfgPath, "--db", db, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestServe_MetricsServerBadAddress(t *testing.T) {
	cfgPath, db := serveConfig(t)

	_, err := execute(t, "", "serve", "--config", cfgPath, "--db", db, "--metrics-addr", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
