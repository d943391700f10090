package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp"
	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/machine"
)

func init() {
	psharp.RegisterAssembly("pstest-cmd-quiescent", func() (*psharp.Assembly, func(*psharp.Runtime) error) {
		mt := machine.NewMachineType("Server")
		mt.AddState(machine.State{
			Name:    "Init",
			IsStart: true,
			Actions: map[event.EventType]machine.ActionFunc{
				"ping": func(ctx machine.Context, evt event.Event) {
					ctx.Send(ctx.Self(), event.NewEvent("pong", nil))
				},
				"pong": func(ctx machine.Context, evt event.Event) { ctx.Pop() },
			},
		})
		a := psharp.NewAssembly()
		_ = a.RegisterMachine(mt)
		return a, func(rt *psharp.Runtime) error {
			_, err := rt.CreateMachine("Server", nil)
			return err
		}
	})

	psharp.RegisterAssembly("pstest-cmd-buggy", func() (*psharp.Assembly, func(*psharp.Runtime) error) {
		mt := machine.NewMachineType("Waiter")
		mt.AddState(machine.State{
			Name:    "Init",
			IsStart: true,
			Actions: map[event.EventType]machine.ActionFunc{
				"start": func(ctx machine.Context, evt event.Event) { ctx.Receive("never-arrives") },
			},
		})
		a := psharp.NewAssembly()
		_ = a.RegisterMachine(mt)
		return a, func(rt *psharp.Runtime) error {
			startEvt := event.NewEvent("start", nil)
			_, err := rt.CreateMachine("Waiter", &startEvt)
			return err
		}
	})
}

func TestRunRequiresAssemblyFlag(t *testing.T) {
	require.Equal(t, exitConfig, run([]string{"--strategy", "random"}))
}

func TestRunRejectsUnregisteredAssembly(t *testing.T) {
	require.Equal(t, exitConfig, run([]string{"--assembly", "no-such-assembly"}))
}

func TestRunRejectsUnparseableFlags(t *testing.T) {
	require.Equal(t, exitConfig, run([]string{"--not-a-real-flag"}))
}

func TestRunRejectsUnknownStrategy(t *testing.T) {
	require.Equal(t, exitConfig, run([]string{"--assembly", "pstest-cmd-quiescent", "--strategy", "bogus"}))
}

func TestRunQuiescentAssemblyExitsSuccess(t *testing.T) {
	require.Equal(t, exitSuccess, run([]string{"--assembly", "pstest-cmd-quiescent", "--strategy", "dfs"}))
}

func TestRunBuggyAssemblyExitsWithBugCode(t *testing.T) {
	require.Equal(t, exitBug, run([]string{"--assembly", "pstest-cmd-buggy", "--seed", "1"}))
}

func TestRunMissingReplayFileExitsConfig(t *testing.T) {
	require.Equal(t, exitConfig, run([]string{"--assembly", "pstest-cmd-quiescent", "--replay", "/nonexistent/trace.txt"}))
}

func TestRunExportTreeWritesNewickUnderDFS(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tree.nwk")
	require.Equal(t, exitSuccess, run([]string{"--assembly", "pstest-cmd-quiescent", "--strategy", "dfs", "--export-tree", out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), ";"))
}

func TestRunExportTreeIsANoOpUnderRandom(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tree.nwk")
	require.Equal(t, exitSuccess, run([]string{"--assembly", "pstest-cmd-quiescent", "--strategy", "random", "--export-tree", out}))

	_, err := os.ReadFile(out)
	require.Error(t, err, "random has nothing to export, so no file should be written")
}
