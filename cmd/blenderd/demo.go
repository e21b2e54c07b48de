package main

import (
	"fmt"
	"io"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/config"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"github.com/KevinKickass/OpenBlenderCore/internal/machine"
	"github.com/KevinKickass/OpenBlenderCore/internal/sim"
	"github.com/KevinKickass/OpenBlenderCore/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type demoOptions struct {
	jamAtStep int
	jamFor    time.Duration
	limit     time.Duration
}

func init() {
	opts := demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run one simulated blend and clean cycle and print the machine events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger
			if !verbose {
				l = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
			}
			return runDemo(cmd.OutOrStdout(), cfg, l, opts)
		},
	}
	cmd.Flags().IntVar(&opts.jamAtStep, "jam-at-step", 11, "Jam the carriage when the blend reaches this step (0 disables)")
	cmd.Flags().DurationVar(&opts.jamFor, "jam-for", time.Second, "How long the carriage stays jammed")
	cmd.Flags().DurationVar(&opts.limit, "limit", 10*time.Minute, "Give up after this much simulated time")
	rootCmd.AddCommand(cmd)
}

// demo drives a controller on a manual clock, one tick at a time.
type demo struct {
	out       io.Writer
	rig       *sim.Rig
	ctrl      *machine.Controller
	events    chan machine.Event
	tickMs    int64
	holdTicks int
	limitMs   int64
}

func runDemo(out io.Writer, cfg *config.Config, logger *zap.Logger, opts demoOptions) error {
	rig := sim.NewRig(action.Position(cfg.Positions.Top))

	m, err := system.NewMachine(cfg, rig, rig.Clock, logger)
	if err != nil {
		return err
	}
	if err := m.Init(); err != nil {
		return err
	}

	ctrl := machine.NewController(logger, m, cfg.Machine.TickInterval, nil)
	d := &demo{
		out:       out,
		rig:       rig,
		ctrl:      ctrl,
		events:    ctrl.Subscribe(),
		tickMs:    cfg.Machine.TickInterval.Milliseconds(),
		holdTicks: int(cfg.Machine.ButtonDebounce/cfg.Machine.TickInterval) + 2,
		limitMs:   opts.limit.Milliseconds(),
	}
	defer ctrl.Unsubscribe(d.events)

	fmt.Fprintf(out, "%9s  %-21s %-13s %-9s %s\n", "time", "event", "state", "step", "position")

	d.press(hal.InitializeButton)
	if err := d.until("initialization", func(s machine.MachineStatus) bool {
		return s.Initialized && s.State == machine.StateIdle
	}); err != nil {
		return err
	}

	d.press(hal.BlendButton)

	if opts.jamAtStep > 0 {
		if err := d.until(fmt.Sprintf("blend step %d", opts.jamAtStep), func(s machine.MachineStatus) bool {
			return s.State == machine.StateBlending && s.Step >= opts.jamAtStep
		}); err != nil {
			return err
		}
		rig.Jam(true)
		for end := rig.Clock.Millis() + opts.jamFor.Milliseconds(); rig.Clock.Millis() < end; {
			d.tick()
		}
		rig.Jam(false)
	}

	if err := d.until("cleaning", func(s machine.MachineStatus) bool {
		return s.State == machine.StateCleaning
	}); err != nil {
		return err
	}

	// Becher entnehmen, damit die Reinigung startet
	rig.SetDistance(cfg.Clean.CupAbsentDistance + 10)

	if err := d.until("idle", func(s machine.MachineStatus) bool {
		return s.State == machine.StateIdle
	}); err != nil {
		return err
	}

	status := ctrl.GetStatus()
	fmt.Fprintf(out, "demo complete after %.2fs: %d jam(s), carriage at %d\n",
		float64(rig.Clock.Millis())/1000, status.JamCount, status.Position)
	return nil
}

func (d *demo) tick() {
	d.rig.Advance(d.tickMs)
	d.ctrl.Tick()

	for {
		select {
		case ev := <-d.events:
			d.print(ev)
		default:
			return
		}
	}
}

func (d *demo) print(ev machine.Event) {
	step := "-"
	if ev.Total > 0 {
		step = fmt.Sprintf("%d/%d", ev.Step, ev.Total)
	}
	fmt.Fprintf(d.out, "%8.2fs  %-21s %-13s %-9s %d",
		float64(d.rig.Clock.Millis())/1000, ev.Type, ev.State, step, ev.Position)
	if ev.Message != "" {
		fmt.Fprintf(d.out, "  %s", ev.Message)
	}
	fmt.Fprintln(d.out)
}

// press holds the button long enough to pass the debouncer, then lets
// the release settle.
func (d *demo) press(id hal.ButtonID) {
	d.rig.Press(id)
	for i := 0; i < d.holdTicks; i++ {
		d.tick()
	}
	d.rig.Release(id)
	for i := 0; i < d.holdTicks; i++ {
		d.tick()
	}
}

func (d *demo) until(what string, cond func(machine.MachineStatus) bool) error {
	for !cond(d.ctrl.GetStatus()) {
		if d.rig.Clock.Millis() > d.limitMs {
			return fmt.Errorf("demo timed out waiting for %s", what)
		}
		d.tick()
	}
	return nil
}
