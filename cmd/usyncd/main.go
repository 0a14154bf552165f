// usyncd is the UsenetSync daemon. It assembles the full pipeline over a
// relay and serves the HTTP API until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/modules"
)

var (
	// Flags.
	apiAddr      string // address the API listens on
	usyncDir     string // root persist directory
	relayKind    string // relay implementation to use
	newsgroup    string // posting group
	segmentSize  uint64 // segment size in bytes
	redundancy   int    // default replica count
	uploadWorkers, downloadWorkers int
)

// exit codes, inspired by sysexits.h.
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

// die prints an error and exits.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versionCmd prints the daemon version.
func versionCmd(*cobra.Command, []string) {
	fmt.Println("UsenetSync Daemon v" + build.Version)
	if build.GitRevision != "" {
		fmt.Println("\tGit Revision " + build.GitRevision)
		fmt.Println("\tBuild Time " + build.BuildTime)
	}
}

// startCmd runs the daemon.
func startCmd(*cobra.Command, []string) {
	config := modules.DefaultConfig()
	if segmentSize > 0 {
		config.SegmentSize = segmentSize
	}
	if redundancy >= 0 {
		config.RedundancyLevel = redundancy
	}
	if uploadWorkers > 0 {
		config.UploadWorkers = uploadWorkers
	}
	if downloadWorkers > 0 {
		config.DownloadWorkers = downloadWorkers
	}
	if newsgroup != "" {
		config.Newsgroup = newsgroup
	}
	if config.RedundancyLevel > modules.MaxRedundancyLevel {
		die("redundancy level may not exceed", modules.MaxRedundancyLevel)
	}

	if err := startDaemon(config); err != nil {
		die(err)
	}
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "UsenetSync Daemon v" + build.Version,
		Long:  "UsenetSync Daemon v" + build.Version,
		Run:   startCmd,
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the UsenetSync Daemon",
		Run:   versionCmd,
	})

	root.PersistentFlags().StringVarP(&apiAddr, "api-addr", "a", "localhost:9970", "which address the API listens on")
	root.PersistentFlags().StringVarP(&usyncDir, "usync-dir", "d", defaultUsyncDir(), "directory holding all daemon state")
	root.PersistentFlags().StringVar(&relayKind, "relay", "mem", "relay implementation (mem)")
	root.PersistentFlags().StringVar(&newsgroup, "newsgroup", "", "newsgroup segments are posted to")
	root.PersistentFlags().Uint64Var(&segmentSize, "segment-size", 0, "segment size in bytes")
	root.PersistentFlags().IntVar(&redundancy, "redundancy", -1, "replicas posted per segment")
	root.PersistentFlags().IntVar(&uploadWorkers, "upload-workers", 0, "size of the upload worker pool")
	root.PersistentFlags().IntVar(&downloadWorkers, "download-workers", 0, "size of the download worker pool")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
