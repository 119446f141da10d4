// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/dodobot/serialbridge/pkg/dodolink"
	"github.com/dodobot/serialbridge/pkg/logging"
)

const (
	shellKey        = "$bridge"
	shellCmdTimeout = time.Second
)

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Interactive console for sending commands to the device",
	Long: `Run the bridge with an interactive command console.

The bridge performs the handshake and enables the robot as in "run", without
MQTT or the status API. Commands typed at the prompt are queued on the bridge:

` + commandHelp + `

The console also provides "status" and "stats". When arguments are given, they
are run as a single command once the device is ready, then the shell exits.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellFrom gets the supervisor from an ishell context
func shellFrom(c *ishell.Context) *supervisor {
	return c.Get(shellKey).(*supervisor)
}

// submitLine parses a console line and waits for the device command to be sent
func submitLine(sup *supervisor, line string) error {
	command, err := parseCommand(line)
	if err != nil {
		return err
	}
	select {
	case err := <-sup.Submit(command.Apply):
		return err
	case <-time.After(shellCmdTimeout):
		return fmt.Errorf("command timeout")
	}
}

func deviceCmd(name, help string, aliases ...string) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			line := name + " " + strings.Join(c.Args, " ")
			if err := submitLine(shellFrom(c), line); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}
}

func statusCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "status",
		Help: "link and robot state",
		Func: func(c *ishell.Context) {
			sup := shellFrom(c)
			session := sup.Session()
			ready := session.Ready()
			robot := session.Robot()
			c.Printf("connection: %s\n", sup.ConnInfo())
			c.Printf("handshake:  %s\n", sup.HandshakeState())
			if ready.IsReady {
				c.Printf("robot:      %s (ready at device time %d ms)\n", ready.RobotName, ready.DeviceTimeMs)
			}
			c.Printf("active:     %t  motors: %t  battery ok: %t  loop: %.1f Hz\n",
				robot.IsActive, robot.MotorsActive, robot.BatteryOK, robot.LoopRate)
			c.Printf("sequence:   read %d  write %d\n", session.ReadSeq(), session.WriteSeq())
		},
	}
}

func statsCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "stats",
		Help: "link statistics",
		Func: func(c *ishell.Context) {
			c.Print(shellFrom(c).Stats().String())
		},
	}
}

func newShell(sup *supervisor) *ishell.Shell {
	sh := ishell.New()
	sh.Set(shellKey, sup)
	sh.SetPrompt("dodobot > ")
	sh.AddCmd(deviceCmd("drive", "<left> <right>"))
	sh.AddCmd(deviceCmd("grip", "open|close|toggle [force]", "gripper"))
	sh.AddCmd(deviceCmd("tilt", "up|down|toggle|<pos>", "tilter"))
	sh.AddCmd(deviceCmd("linear", "<type> <value>"))
	sh.AddCmd(deviceCmd("gains", "<kpA> <kiA> <kdA> <kpB> <kiB> <kdB> <skA> <skB>", "pid", "ks"))
	sh.AddCmd(deviceCmd("active", "on|off"))
	sh.AddCmd(deviceCmd("reporting", "on|off"))
	sh.AddCmd(deviceCmd("restart", "soft-restart the firmware"))
	sh.AddCmd(statusCmd())
	sh.AddCmd(statsCmd())
	return sh
}

func runShell(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireConnection(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var sh *ishell.Shell
	log := logging.New("serialbridge", logging.Options{
		Level: cfg.LogLevel,
		Out: logging.NewLineWriter(func(line string) {
			if sh != nil {
				sh.Println(line)
			}
		}),
	})

	sup := newSupervisor(cfg, bridgeHooks{}, log)
	sh = newShell(sup)

	result := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		err := sup.Run(ctx)
		result <- err
		close(stopped)
		if err != nil && len(args) == 0 {
			sh.Close()
		}
	}()

	if len(args) > 0 {
		if err := waitReady(ctx, stopped, sup, 10*time.Second); err != nil {
			cancel()
			if runErr := <-result; runErr != nil {
				return runErr
			}
			return err
		}
		err := submitLine(sup, strings.Join(args, " "))
		cancel()
		<-result
		return err
	}

	sh.Println("serialbridge console. Type 'help' for commands, 'exit' to quit.")
	sh.Run()
	cancel()
	return <-result
}

// waitReady blocks until the supervisor's handshake completes or the
// supervisor stops
func waitReady(ctx context.Context, stopped <-chan struct{}, sup *supervisor, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sup.HandshakeState() == dodolink.HandshakeReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return dodolink.ErrConnectionClosed
		case <-deadline:
			return dodolink.ErrHandshakeTimeout
		case <-ticker.C:
		}
	}
}
