// Command monarch hosts the single-authority chain control core.
//
// Without --producer-url it runs the producer role,
// scheduling block production against the local consensus engine.
// With --producer-url it runs the follower role,
// mirroring the remote producer's blocks into the local engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/spf13/cobra"

	"github.com/monarch-engine/monarch/mengine"
	"github.com/monarch-engine/monarch/mhttp"
	"github.com/monarch-engine/monarch/mrelay"
	"github.com/monarch-engine/monarch/mrpc"
	"github.com/monarch-engine/monarch/msched"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type nodeFlags struct {
	engineURL   string
	chainURL    string
	producerURL string

	blockInterval time.Duration
	feeRecipient  string

	peerFile string
	httpAddr string
	moniker  string

	relayFailFast bool
}

func newRootCommand() *cobra.Command {
	var f nodeFlags

	cmd := &cobra.Command{
		Use:   "monarch",
		Short: "Run a single-authority chain node in producer or follower role",

		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), &f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.engineURL, "engine.url", "http://127.0.0.1:8551", "Engine API endpoint of the local execution client")
	fs.StringVar(&f.chainURL, "chain.url", "http://127.0.0.1:8545", "Chain RPC endpoint of the local execution client (producer role)")
	fs.StringVar(&f.producerURL, "producer-url", "", "ws:// URL of the producer node; setting this selects the follower role")
	fs.DurationVar(&f.blockInterval, "block-interval", 5*time.Second, "Block production cadence (producer role)")
	fs.StringVar(&f.feeRecipient, "fee-recipient", "", "Fee recipient address for produced blocks")
	fs.StringVar(&f.peerFile, "peer-file", "", "Where to write this node's network identity record (producer role)")
	fs.StringVar(&f.httpAddr, "http.addr", "", "Listen address for the status HTTP server; empty disables it")
	fs.StringVar(&f.moniker, "moniker", petname.Generate(2, "-"), "Human-readable name for this node")
	fs.BoolVar(&f.relayFailFast, "relay.fail-fast", false, "Abort the follower on the first malformed remote block instead of skipping it")

	return cmd
}

func runNode(ctx context.Context, f *nodeFlags) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("moniker", f.moniker)

	engine, err := mrpc.DialEngine(ctx, log.With("sys", "engine"), f.engineURL, mengine.DefaultVersion)
	if err != nil {
		return err
	}
	defer engine.Close()

	if f.producerURL != "" {
		return runFollower(ctx, log, f, engine)
	}
	return runProducer(ctx, log, f, engine)
}

func runProducer(ctx context.Context, log *slog.Logger, f *nodeFlags, engine *mrpc.EngineClient) error {
	log.Info("Running a producer node")

	chain, err := mrpc.DialChain(ctx, log.With("sys", "chain"), f.chainURL)
	if err != nil {
		return err
	}
	defer chain.Close()

	if f.peerFile != "" {
		// The identity stays live for the lifetime of the process so
		// followers can hold it in their trusted-peers configuration.
		p2pHost, err := libp2p.New()
		if err != nil {
			return fmt.Errorf("create p2p identity: %w", err)
		}
		defer p2pHost.Close()

		if err := writePeerRecord(f.peerFile, p2pHost); err != nil {
			return err
		}
		log.Info("Wrote peer record", "path", f.peerFile, "id", p2pHost.ID().String())
	}

	sched, err := msched.New(ctx, log.With("sys", "scheduler"), msched.Config{
		Engine:        engine,
		Builder:       engine,
		Chain:         chain,
		Attributes:    msched.LocalAttributesBuilder{FeeRecipient: common.HexToAddress(f.feeRecipient)},
		BlockInterval: f.blockInterval,
	})
	if err != nil {
		return err
	}

	if err := startStatusServer(ctx, log, f, func() mhttp.Status {
		return mhttp.Status{Role: "producer", Moniker: f.moniker, Detail: sched.Snapshot()}
	}); err != nil {
		return err
	}

	return ignoreShutdown(sched.Run(ctx))
}

func runFollower(ctx context.Context, log *slog.Logger, f *nodeFlags, engine *mrpc.EngineClient) error {
	log.Info("Running a follower node", "producer", f.producerURL)

	source, err := mrpc.DialChain(ctx, log.With("sys", "source"), f.producerURL)
	if err != nil {
		return err
	}
	defer source.Close()

	policy := mrelay.PolicySkipMalformed
	if f.relayFailFast {
		policy = mrelay.PolicyFailFast
	}

	relay, err := mrelay.New(log.With("sys", "relay"), mrelay.Config{
		Engine:     engine,
		Source:     source,
		SourceName: f.producerURL,
		Policy:     policy,
	})
	if err != nil {
		return err
	}

	if err := startStatusServer(ctx, log, f, func() mhttp.Status {
		return mhttp.Status{Role: "follower", Moniker: f.moniker, Detail: relay.Snapshot()}
	}); err != nil {
		return err
	}

	return ignoreShutdown(relay.Run(ctx))
}

func startStatusServer(ctx context.Context, log *slog.Logger, f *nodeFlags, snapshot func() mhttp.Status) error {
	if f.httpAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", f.httpAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", f.httpAddr, err)
	}
	mhttp.NewServer(ctx, log.With("sys", "http"), mhttp.Config{
		Listener: ln,
		Snapshot: snapshot,
	})
	return nil
}

// writePeerRecord persists the node's dialable addresses,
// one multiaddr per line, for operator-driven trust configuration.
func writePeerRecord(path string, h host.Host) error {
	id := h.ID()
	lines := make([]string, 0, len(h.Addrs()))
	for _, a := range h.Addrs() {
		lines = append(lines, fmt.Sprintf("%s/p2p/%s", a, id))
	}
	if len(lines) == 0 {
		lines = append(lines, id.String())
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write peer record %s: %w", path, err)
	}
	return nil
}

// ignoreShutdown maps an orderly signal-driven stop to a clean exit.
func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
