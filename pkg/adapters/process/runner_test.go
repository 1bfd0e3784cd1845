package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/markup"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tools in these tests are sh scripts")
	}
}

func shTool(name, script string) process.Tool {
	return process.Tool{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
tools:
  - name: Echo
    command: echo
    args: [hello]
    env: {MODE: test}
`), 0o644))
	jsonPath := filepath.Join(dir, "tools.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"tools": [{"name": "ls", "command": "ls"}]}`), 0o644))

	tools, err := process.LoadTools(yamlPath)
	require.NoError(t, err)
	require.Contains(t, tools, "echo")
	assert.Equal(t, []string{"hello"}, tools["echo"].Args)
	assert.Equal(t, "test", tools["echo"].Environment["MODE"])

	tools, err = process.LoadTools(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, tools, "ls")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tools: [{name: x}]"), 0o644))
	_, err = process.LoadTools(bad)
	assert.ErrorContains(t, err, "needs a name and a command")

	_, err = process.LoadTools(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	r := process.NewRunner(process.WithRegistry(map[string]process.Tool{
		"json":  shTool("json", `echo '{"n": 3, "tags": ["a"]}'`),
		"greet": shTool("Greet", `printf "hi %s/%s" "$WEFT_ARG_NAME" "$WEFT_ARG_LAST_NAME"`),
		"fail":  shTool("fail", `echo boom >&2; exit 3`),
	}))
	assert.Equal(t, []string{"fail", "greet", "json"}, r.Names())

	out, err := r.Run(ctx, "json", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(3), "tags": []any{"a"}}, out)

	out, err = r.Run(ctx, "GREET", map[string]string{"name": "ana", "last-name": "lee"})
	require.NoError(t, err)
	assert.Equal(t, "hi ana/lee", out)

	_, err = r.Run(ctx, "fail", nil)
	assert.ErrorContains(t, err, "exit status 3")
	assert.ErrorContains(t, err, "boom")

	_, err = r.Run(ctx, "rm", nil)
	assert.ErrorIs(t, err, process.ErrToolNotRegistered)
}

func TestRunner_CancelInterruptsTheProgram(t *testing.T) {
	requireShell(t)
	r := process.NewRunner(process.WithGracePeriod(200 * time.Millisecond))
	r.Register(shTool("slow", "sleep 10"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, "slow", nil)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_InstallIntoEngine(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	doc, err := markup.Parse([]byte(`
variables: {who: ana}
handlers:
  greet:
    - {op: Greet, Name: "{who}", Variable: greeting}
    - {op: Fail, ErrorVariable: problem}
`))
	require.NoError(t, err)
	eng := weft.New()
	require.NoError(t, eng.Load(ctx, doc))

	r := process.NewRunner()
	r.Register(shTool("greet", `printf "hello %s" "$WEFT_ARG_NAME"`))
	r.Register(shTool("fail", `exit 1`))
	r.Install(eng)

	require.True(t, eng.ExecuteHandlerByName(ctx, "greet"))
	snap := eng.StateSnapshot()
	assert.Equal(t, "hello ana", snap["greeting"])
	assert.Contains(t, snap["problem"], "exit status 1")
}
