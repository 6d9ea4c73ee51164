// Package demo builds the function block networks run by the fbexec
// command and used by end-to-end tests.
//
// Every network is built from a config.Config, so the same topology can
// be run live (default scheduler, wall clock timers, loopback transport)
// and rebuilt for replay (manual scheduler, fake timers, manual transport).
package demo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/blocks"
	"github.com/roach88/fbexec/internal/comlayer"
	"github.com/roach88/fbexec/internal/config"
	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/fb"
	"github.com/roach88/fbexec/internal/resource"
	"github.com/roach88/fbexec/internal/timer"
	"github.com/roach88/fbexec/internal/trace"
)

// Network names accepted by Build.
const (
	CounterSwitch    = "counter-switch"
	ProducerConsumer = "producer-consumer"
)

// settlePollInterval is how often WaitSettled re-checks a network driven
// by wall clock timers.
const settlePollInterval = time.Millisecond

type builder func(n *Network, cfg config.Config, opts []resource.Option) error

var builders = map[string]builder{
	CounterSwitch:    buildCounterSwitch,
	ProducerConsumer: buildProducerConsumer,
}

// Names lists the known networks in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Network is a built demo network.
type Network struct {
	Name   string
	Device *resource.Device

	bus     *comlayer.Bus
	fakes   []*timer.Fake
	settled func() bool
	logger  *zap.Logger
}

// Build assembles the named network. sink is required when cfg selects the
// memory trace backend. A nil logger is replaced by a no-op logger.
func Build(name string, cfg config.Config, sink *trace.MemorySink, logger *zap.Logger) (*Network, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown network %q: must be one of %v", name, Names())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dev, err := resource.NewDevice()
	if err != nil {
		return nil, err
	}
	n := &Network{
		Name:   name,
		Device: dev,
		bus:    comlayer.NewBus(),
		logger: logger.With(zap.String("network", name)),
	}
	if err := build(n, cfg, cfg.ResourceOptions(sink, logger)); err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return n, nil
}

// ReplayConfig derives the configuration a captured run of these networks
// is replayed with: manual scheduler, fake timers, manual com layer and an
// in-memory trace. The service types driven by the outside world are
// added to the absorbed types.
func ReplayConfig(cfg config.Config) config.Config {
	cfg.Scheduler = engine.SchedulerManual
	cfg.Timer = timer.NameFake
	cfg.ComLayer = comlayer.NameManual
	cfg.Trace.Backend = trace.BackendMemory
	cfg.Trace.Dir = ""
	types := slices.Clone(cfg.Replay.ValidTypes)
	for _, t := range []string{blocks.SubscribeSpec.TypeName, blocks.DelaySpec.TypeName} {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	cfg.Replay.ValidTypes = types
	return cfg
}

// Start starts the resources one by one, letting each settle its cold
// start chain before the next one starts, so that receivers are connected
// before senders run.
func (n *Network) Start(ctx context.Context) error {
	for _, r := range n.Device.Resources() {
		r.Start(ctx)
		if _, driven := r.Controller(); driven {
			continue
		}
		if err := r.WaitIdle(ctx); err != nil {
			return fmt.Errorf("start %s: %w", r.Name(), err)
		}
	}
	n.logger.Info("network started", zap.Int("resources", len(n.Device.Resources())))
	return nil
}

// Settled reports whether the network reached its final state.
func (n *Network) Settled() bool { return n.settled() }

// WaitSettled blocks until the network is settled and idle. Fake timers
// are advanced one tick at a time while waiting.
func (n *Network) WaitSettled(ctx context.Context) error {
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		if err := n.Device.WaitIdle(ctx); err != nil {
			return err
		}
		if n.settled() {
			return nil
		}
		if len(n.fakes) > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("network %s did not settle: %w", n.Name, err)
			}
			for _, f := range n.fakes {
				if err := f.Advance(ctx, timer.Tick); err != nil {
					return err
				}
			}
			continue
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("network %s did not settle: %w", n.Name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the network and flushes its traces.
func (n *Network) Close() error {
	return n.Device.Close()
}

// newResource creates a resource with a restart block and adds it to the
// device.
func (n *Network) newResource(name string, opts []resource.Option) (*resource.Resource, *fb.Block, error) {
	res, err := resource.New(name, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := n.Device.Add(res); err != nil {
		_ = res.Close()
		return nil, nil, err
	}
	restart := blocks.NewRestart("START")
	if err := res.SetRestart(restart); err != nil {
		return nil, nil, err
	}
	return res, restart, nil
}

// newTimer builds res's timer handler and disables it when res closes.
func (n *Network) newTimer(cfg config.Config, res *resource.Resource) (timer.Handler, error) {
	h, err := cfg.NewTimer(res.IsProcessingEvents)
	if err != nil {
		return nil, err
	}
	if f, ok := h.(*timer.Fake); ok {
		n.fakes = append(n.fakes, f)
	}
	res.OnClose(h.Disable)
	return h, nil
}

// conn is one event or data connection.
type conn struct {
	src *fb.Block
	out string
	dst *fb.Block
	in  string
}

func connectEvents(cs ...conn) error {
	for _, c := range cs {
		if err := c.src.ConnectEvent(c.out, c.dst, c.in); err != nil {
			return err
		}
	}
	return nil
}

func connectData(cs ...conn) error {
	for _, c := range cs {
		if err := c.src.ConnectData(c.out, c.dst, c.in); err != nil {
			return err
		}
	}
	return nil
}

func setInputs(b *fb.Block, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := b.SetInput(kv[i], kv[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// buildCounterSwitch is one resource counting delayed ticks:
//
//	START.COLD -> Delay.START -> Counter.CU -> Switch.EI
//	Switch.EO0 -> Delay.START, Counter.Q -> Switch.G
//
// It settles once the counter reaches PV=3.
func buildCounterSwitch(n *Network, cfg config.Config, opts []resource.Option) error {
	res, restart, err := n.newResource("RES", opts)
	if err != nil {
		return err
	}
	h, err := n.newTimer(cfg, res)
	if err != nil {
		return err
	}

	dly := blocks.NewDelay("Delay", h, res)
	ctu := blocks.NewCounter("Counter")
	sw := blocks.NewSwitch("Switch")
	if err := setInputs(dly, "DT", "10"); err != nil {
		return err
	}
	if err := setInputs(ctu, "PV", "3"); err != nil {
		return err
	}
	if err := connectEvents(
		conn{restart, "COLD", dly, "START"},
		conn{dly, "EO", ctu, "CU"},
		conn{ctu, "CUO", sw, "EI"},
		conn{sw, "EO0", dly, "START"},
	); err != nil {
		return err
	}
	if err := connectData(conn{ctu, "Q", sw, "G"}); err != nil {
		return err
	}
	if err := res.Add(dly, ctu, sw); err != nil {
		return err
	}

	n.settled = func() bool { return ctu.Output(0).Bool() }
	return nil
}

// buildProducerConsumer is two resources joined by the com layer. The
// producer publishes its counter value three times, one delay apart; the
// consumer counts the indications it receives.
//
//	PRODUCER: START.COLD -> Pub.INIT -> Delay.START -> Counter.CU -> Pub.REQ
//	          Pub.CNF -> Switch.EI, Switch.EO0 -> Delay.START
//	CONSUMER: START.COLD -> Sub.INIT, Sub.IND -> Count.CU
//
// The consumer is started first so that it is subscribed before the
// producer sends.
func buildProducerConsumer(n *Network, cfg config.Config, opts []resource.Option) error {
	newLayer := cfg.LayerFactory(n.bus)

	consumer, cStart, err := n.newResource("CONSUMER", opts)
	if err != nil {
		return err
	}
	sub, err := blocks.NewSubscriber("Sub", consumer, newLayer)
	if err != nil {
		return err
	}
	consumer.OnClose(sub.Close)
	count := blocks.NewCounter("Count")
	if err := setInputs(sub.Block, "QI", "TRUE", "ID", "demo"); err != nil {
		return err
	}
	if err := setInputs(count, "PV", "3"); err != nil {
		return err
	}
	if err := connectEvents(
		conn{cStart, "COLD", sub.Block, "INIT"},
		conn{sub.Block, "IND", count, "CU"},
	); err != nil {
		return err
	}
	if err := consumer.Add(sub.Block, count); err != nil {
		return err
	}

	producer, pStart, err := n.newResource("PRODUCER", opts)
	if err != nil {
		return err
	}
	layer, err := newLayer(nil)
	if err != nil {
		return err
	}
	h, err := n.newTimer(cfg, producer)
	if err != nil {
		return err
	}
	pub := blocks.NewPublisher("Pub", layer)
	producer.OnClose(layer.CloseConnection)
	dly := blocks.NewDelay("Delay", h, producer)
	ctu := blocks.NewCounter("Counter")
	sw := blocks.NewSwitch("Switch")
	if err := setInputs(pub, "QI", "TRUE", "ID", "demo"); err != nil {
		return err
	}
	if err := setInputs(dly, "DT", "5"); err != nil {
		return err
	}
	if err := setInputs(ctu, "PV", "3"); err != nil {
		return err
	}
	if err := connectEvents(
		conn{pStart, "COLD", pub, "INIT"},
		conn{pub, "INITO", dly, "START"},
		conn{dly, "EO", ctu, "CU"},
		conn{ctu, "CUO", pub, "REQ"},
		conn{pub, "CNF", sw, "EI"},
		conn{sw, "EO0", dly, "START"},
	); err != nil {
		return err
	}
	if err := connectData(
		conn{ctu, "CV", pub, "SD_1"},
		conn{ctu, "Q", sw, "G"},
	); err != nil {
		return err
	}
	if err := producer.Add(pub, dly, ctu, sw); err != nil {
		return err
	}

	n.settled = func() bool { return count.Output(0).Bool() }
	return nil
}
