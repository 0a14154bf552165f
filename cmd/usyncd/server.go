package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/contemptx/usenetsync-sub004/api"
	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/modules/accessmgr"
	"github.com/contemptx/usenetsync-sub004/modules/downloader"
	"github.com/contemptx/usenetsync-sub004/modules/indexer"
	"github.com/contemptx/usenetsync-sub004/modules/obfuscator"
	"github.com/contemptx/usenetsync-sub004/modules/relay"
	"github.com/contemptx/usenetsync-sub004/modules/scanner"
	"github.com/contemptx/usenetsync-sub004/modules/segmenter"
	"github.com/contemptx/usenetsync-sub004/modules/store"
	"github.com/contemptx/usenetsync-sub004/modules/syncer"
	"github.com/contemptx/usenetsync-sub004/modules/uploader"

	"github.com/NebulousLabs/errors"
)

// defaultUsyncDir returns the default state directory.
func defaultUsyncDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".usenetsync"
	}
	return filepath.Join(home, ".usenetsync")
}

// buildRelay constructs the configured relay implementation.
func buildRelay(config modules.Config) (modules.Relay, error) {
	switch relayKind {
	case "mem":
		return relay.NewMemory(config.UploadWorkers + config.DownloadWorkers), nil
	default:
		return nil, errors.New("unknown relay implementation: " + relayKind)
	}
}

// closer pairs a module name with its Close function, so shutdown errors
// can name the module that produced them.
type closer struct {
	name  string
	close func() error
}

// closeAll closes the modules in reverse start order and joins the
// failures into one error.
func closeAll(closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].close(); err != nil {
			errs = append(errs, errors.AddContext(err, closers[i].name))
		}
	}
	return build.JoinErrors(errs, "; ")
}

// startDaemon assembles every module, serves the API, and blocks until a
// termination signal arrives.
func startDaemon(config modules.Config) (err error) {
	fmt.Println("Loading...")
	inner, err := buildRelay(config)
	if err != nil {
		return err
	}
	pool := relay.NewPool(inner)

	// Modules are torn down in reverse start order once the server stops.
	var closers []closer
	defer func() {
		err = errors.Compose(err, closeAll(closers))
	}()

	st, err := store.New(filepath.Join(usyncDir, "store"))
	if err != nil {
		return errors.AddContext(err, "unable to open the store")
	}
	closers = append(closers, closer{"store", st.Close})
	am, err := accessmgr.New(st, filepath.Join(usyncDir, "accessmgr"))
	if err != nil {
		return errors.AddContext(err, "unable to start the access manager")
	}
	closers = append(closers, closer{"accessmgr", am.Close})
	sc, err := scanner.New(st, config, filepath.Join(usyncDir, "scanner"))
	if err != nil {
		return errors.AddContext(err, "unable to start the scanner")
	}
	closers = append(closers, closer{"scanner", sc.Close})
	sg, err := segmenter.New(st, config, filepath.Join(usyncDir, "segmenter"))
	if err != nil {
		return errors.AddContext(err, "unable to start the segmenter")
	}
	closers = append(closers, closer{"segmenter", sg.Close})
	obf := obfuscator.New()
	up, err := uploader.New(st, am, sg, obf, pool, config, filepath.Join(usyncDir, "uploader"))
	if err != nil {
		return errors.AddContext(err, "unable to start the uploader")
	}
	closers = append(closers, closer{"uploader", up.Close})
	ix, err := indexer.New(st, am, obf, pool, config, filepath.Join(usyncDir, "indexer"))
	if err != nil {
		return errors.AddContext(err, "unable to start the indexer")
	}
	closers = append(closers, closer{"indexer", ix.Close})
	dl, err := downloader.New(st, pool, config, filepath.Join(usyncDir, "downloader"))
	if err != nil {
		return errors.AddContext(err, "unable to start the downloader")
	}
	closers = append(closers, closer{"downloader", dl.Close})
	sy, err := syncer.New(st, am, sc, sg, up, ix, dl, config, filepath.Join(usyncDir, "syncer"))
	if err != nil {
		return errors.AddContext(err, "unable to start the syncer")
	}
	closers = append(closers, closer{"syncer", sy.Close})

	listener, err := net.Listen("tcp", apiAddr)
	if err != nil {
		return errors.AddContext(err, "unable to listen on the API address")
	}
	server := &http.Server{Handler: api.New(sy, up, dl)}

	// Stop the listener on SIGINT/SIGTERM; closeAll then drains the
	// workers.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\rCaught stop signal, quitting...")
		server.Close()
	}()

	fmt.Println("Finished loading. API is now available at", apiAddr)
	err = server.Serve(listener)
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}
