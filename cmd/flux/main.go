// Command flux is the thin entry point wiring the transfer core together.
// Argument parsing here is deliberately minimal — positional paths and a
// handful of flags per subcommand — since a full CLI surface (help text,
// rich flag UX, exit-code conventions) is out of scope for the transfer
// core and belongs to an outer collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/flux-transfer/flux/internal/backend"
	"github.com/flux-transfer/flux/internal/compress"
	"github.com/flux-transfer/flux/internal/config"
	"github.com/flux-transfer/flux/internal/copy"
	"github.com/flux-transfer/flux/internal/logging"
	"github.com/flux-transfer/flux/internal/peer"
	"github.com/flux-transfer/flux/internal/state"
	"github.com/flux-transfer/flux/internal/stats"
	"github.com/flux-transfer/flux/internal/sync"
	"github.com/flux-transfer/flux/internal/verify"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: flux <copy|sync|send|receive|verify> ...")
		os.Exit(2)
	}

	cfg, logger, closer := loadRuntime()
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "copy":
		err = runCopy(ctx, cfg, logger, os.Args[2:])
	case "sync":
		err = runSync(ctx, cfg, logger, os.Args[2:])
	case "send":
		err = runSend(ctx, cfg, os.Args[2:])
	case "receive":
		err = runReceive(ctx, cfg, logger, os.Args[2:])
	case "verify":
		err = runVerify(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "flux:", err)
		os.Exit(1)
	}
}

func loadRuntime() (*config.Config, *slog.Logger, io.Closer) {
	path := os.Getenv("FLUX_CONFIG")
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	}
	if path == "" || err != nil {
		cfg = config.Default()
	}
	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	return cfg, logger, closer
}

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func runCopy(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("copy", flag.ExitOnError)
	recursive := fs.Bool("recursive", false, "recurse into directories")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: flux copy [-recursive] <source> <dest>")
	}

	srcBackend, err := openBackend(logger, fs.Arg(0))
	if err != nil {
		return err
	}
	destBackend, err := openBackend(logger, fs.Arg(1))
	if err != nil {
		return err
	}

	conflict, err := copy.ParseConflictPolicy(cfg.Transfer.ConflictPolicy)
	if err != nil {
		conflict = copy.Skip
	}
	codec, err := compress.ParseCodec(cfg.Transfer.Compression)
	if err != nil {
		codec = compress.None
	}

	tracker := stats.NewTracker(0, 0)
	engine := &copy.Engine{Source: srcBackend, Dest: destBackend}
	results, err := engine.Copy(ctx, fs.Arg(0), fs.Arg(1), copy.Options{
		Recursive:           *recursive,
		Conflict:            conflict,
		Verify:              cfg.Transfer.VerifyByDefault,
		Resume:              cfg.Transfer.ResumeByDefault,
		Compress:            codec,
		ParallelThreshold:   cfg.Transfer.ParallelThresholdRaw,
		ThrottleBytesPerSec: cfg.Transfer.ThrottleRateRaw,
		Progress:            func(done, total int64) { tracker.BytesDone.Store(done) },
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		tracker.FileDone()
		logger.Info("copied", "source", r.SourcePath, "dest", r.DestPath, "bytes", r.BytesCopied)
	}
	fmt.Println(stats.MultiFileSummary(tracker.Snapshot(), false))
	return nil
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	recursive := fs.Bool("recursive", true, "recurse into directories")
	deleteOrphans := fs.Bool("delete", false, "delete destination files with no source counterpart")
	force := fs.Bool("force", false, "allow delete on an empty source tree")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: flux sync [-recursive] [-delete] [-force] <source> <dest>")
	}

	srcBackend, err := openBackend(logger, fs.Arg(0))
	if err != nil {
		return err
	}
	destBackend, err := openBackend(logger, fs.Arg(1))
	if err != nil {
		return err
	}

	engine := &sync.Engine{Source: srcBackend, Dest: destBackend, Logger: logger}
	opts := sync.Options{Recursive: *recursive, DeleteOrphans: *deleteOrphans, Force: *force}
	plan, err := engine.PlanCycle(ctx, fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}
	result := engine.Execute(ctx, fs.Arg(0), fs.Arg(1), plan, opts)
	logger.Info("sync cycle complete", "copied", result.Copied, "updated", result.Updated,
		"skipped", result.Skipped, "deleted", result.Deleted, "failed", result.Failed)
	return nil
}

func runSend(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	codePhrase := fs.String("code", "", "code phrase for ad-hoc trust")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: flux send [-code phrase] <addr> <path>")
	}

	identity, err := state.LoadOrCreateIdentity(cfg.Paths.ConfigDir + "/identity.json")
	if err != nil {
		return err
	}

	result, err := peer.Send(ctx, fs.Arg(0), fs.Arg(1), peer.SendOptions{
		DeviceName: cfg.Device.Name,
		Identity:   identity,
		CodePhrase: *codePhrase,
		Verify:     cfg.Transfer.VerifyByDefault,
	})
	if err != nil {
		return err
	}
	fmt.Printf("sent %d bytes, accepted=%v, checksum_verified=%v\n", result.BytesSent, result.Accepted, result.ChecksumVerified)
	return nil
}

func runReceive(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	addr := fs.String("listen", ":9742", "address to listen on")
	codePhrase := fs.String("code", "", "required code phrase; empty selects TOFU mode")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flux receive [-listen addr] [-code phrase] <dest-dir>")
	}

	identity, err := state.LoadOrCreateIdentity(cfg.Paths.ConfigDir + "/identity.json")
	if err != nil {
		return err
	}
	trust := state.NewTrustStore(cfg.Paths.ConfigDir + "/trusted_devices.json")

	receiver := peer.NewReceiver(logger, cfg.Discovery.AdmissionParallelism)
	receiver.Identity = identity
	receiver.Trust = trust
	receiver.DestDir = fs.Arg(0)
	receiver.MaxReceive = uint64(cfg.Transfer.MaxReceiveSizeRaw)
	receiver.RequireCode = *codePhrase
	receiver.SessionLogDir = cfg.Logging.SessionLogDir

	ln, err := listen(*addr)
	if err != nil {
		return err
	}
	logger.Info("receiving", "listen", *addr, "dest", fs.Arg(0))
	return receiver.Run(ctx, ln)
}

func runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	recursive := fs.Bool("recursive", true, "recurse into directories")
	content := fs.Bool("content", true, "compare file contents, not just size")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: flux verify [-recursive] [-content] <source> <dest>")
	}

	srcBackend, err := openBackend(nil, fs.Arg(0))
	if err != nil {
		return err
	}
	destBackend, err := openBackend(nil, fs.Arg(1))
	if err != nil {
		return err
	}

	engine := &verify.Engine{Source: srcBackend, Dest: destBackend}
	report, err := engine.Compare(ctx, fs.Arg(0), fs.Arg(1), verify.Options{Recursive: *recursive, Content: *content})
	if err != nil {
		return err
	}
	for _, m := range report.Mismatches() {
		fmt.Printf("%s: %s\n", m.RelPath, m.Status)
	}
	if !report.OK() {
		os.Exit(1)
	}
	fmt.Println("trees match")
	return nil
}

// openBackend resolves a path/URI to a Backend via its detected protocol.
// SFTP is not handled here since it requires a host-key callback tied to
// an operator prompt that this thin entry point has no channel for. logger
// may be nil; when non-nil, a WebDAV target with credentials over plain
// HTTP is logged at Warn level per spec §4.3 before dialing.
func openBackend(logger *slog.Logger, target string) (backend.Backend, error) {
	proto, err := backend.DetectProtocol(target)
	if err != nil {
		return nil, err
	}
	if proto.Kind == backend.ProtocolSFTP {
		return nil, fmt.Errorf("flux: sftp destinations require host-key confirmation, not supported by this entry point")
	}
	if proto.Kind == backend.ProtocolWebDAV && logger != nil {
		if warning := backend.InsecureSchemeWarning(proto.URL, proto.Auth); warning != "" {
			logger.Warn("insecure webdav target", "url", proto.URL, "detail", warning)
		}
	}
	return backend.New(proto)
}
