package main

import (
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/memvfs/config"
	"github.com/brettbedarf/memvfs/fuseserver"
	"github.com/brettbedarf/memvfs/internal/util"
	"github.com/brettbedarf/memvfs/manifest"

	"github.com/brettbedarf/memvfs"
)

func main() {
	var (
		manifestPath string
		umount       bool
		verbose      int
	)
	flag.StringVar(&manifestPath, "manifest", "", "Path to a manifest file (json or yaml) to load at startup")
	flag.StringVar(&manifestPath, "m", "", "--manifest (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the mount point first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.Parse()

	if verbose < 1 {
		verbose = 1
	}
	if verbose > 5 {
		verbose = 5
	}
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	logLvl := logLvls[verbose-1]
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("manifest", manifestPath).Str("mnt", mnt).Msg("memvfs initializing")
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}

	if umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		cmd.Run() // nolint:errcheck
	}

	cfg := config.NewDefaultConfig()
	cfg.LogLevel = logLvl

	fs, err := memvfs.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize filesystem")
	}

	if manifestPath != "" {
		m, err := manifest.LoadFile(manifestPath)
		if err != nil {
			logger.Fatal().Err(err).Str("manifest", manifestPath).Msg("Failed to load manifest")
		}
		if err := manifest.Apply(fs, m); err != nil {
			logger.Fatal().Err(err).Msg("Failed to apply manifest")
		}
		logger.Info().Int("nodes", len(m.Nodes)).Msg("Manifest applied")
	} else {
		logger.Warn().Msg("No manifest provided")
	}

	mount, err := fuseserver.Serve(fs, mnt)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	if err := mount.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}

	if err := fs.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close filesystem")
	}
}
