package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

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
)

// apiTester serves a fully assembled node over an httptest server.
type apiTester struct {
	server *httptest.Server
	dir    string
}

func newAPITester(t *testing.T, name string) *apiTester {
	t.Helper()
	dir := build.TempDir("api", name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	config := modules.DefaultConfig()
	config.SegmentSize = 64 * 1024

	st, err := store.New(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	am, err := accessmgr.New(st, filepath.Join(dir, "accessmgr"))
	if err != nil {
		t.Fatal(err)
	}
	sc, err := scanner.New(st, config, filepath.Join(dir, "scanner"))
	if err != nil {
		t.Fatal(err)
	}
	sg, err := segmenter.New(st, config, filepath.Join(dir, "segmenter"))
	if err != nil {
		t.Fatal(err)
	}
	pool := relay.NewPool(relay.NewMemory(4))
	obf := obfuscator.New()
	up, err := uploader.New(st, am, sg, obf, pool, config, filepath.Join(dir, "uploader"))
	if err != nil {
		t.Fatal(err)
	}
	ix, err := indexer.New(st, am, obf, pool, config, filepath.Join(dir, "indexer"))
	if err != nil {
		t.Fatal(err)
	}
	dl, err := downloader.New(st, pool, config, filepath.Join(dir, "downloader"))
	if err != nil {
		t.Fatal(err)
	}
	sy, err := syncer.New(st, am, sc, sg, up, ix, dl, config, filepath.Join(dir, "syncer"))
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(New(sy, up, dl))
	t.Cleanup(func() {
		server.Close()
		sy.Close()
		dl.Close()
		ix.Close()
		up.Close()
		sg.Close()
		sc.Close()
		am.Close()
		st.Close()
	})
	return &apiTester{server: server, dir: dir}
}

// getJSON decodes a GET response into obj.
func (tester *apiTester) getJSON(t *testing.T, route string, obj interface{}) {
	t.Helper()
	resp, err := http.Get(tester.server.URL + route)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %v returned %v", route, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(obj); err != nil {
		t.Fatal(err)
	}
}

// postJSON posts a body and decodes the response when obj is non-nil.
func (tester *apiTester) postJSON(t *testing.T, route string, body interface{}, obj interface{}) int {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(tester.server.URL+route, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if obj != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(obj); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

// TestDaemonVersion checks the version route.
func TestDaemonVersion(t *testing.T) {
	tester := newAPITester(t, t.Name())
	var version DaemonVersion
	tester.getJSON(t, "/daemon/version", &version)
	if version.Version != build.Version {
		t.Fatal("version mismatch:", version.Version)
	}
}

// TestFolderRoutesAndPublish runs add-folder, publish, and download over
// HTTP against an in-memory relay.
func TestFolderRoutesAndPublish(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	tester := newAPITester(t, t.Name())

	// Create a source directory.
	src := filepath.Join(tester.dir, "src")
	if err := os.MkdirAll(src, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("over http"), 0600); err != nil {
		t.Fatal(err)
	}

	// Add the folder.
	var folder struct {
		ID string `json:"id"`
	}
	code := tester.postJSON(t, "/folders", folderAddRequest{Path: src, Name: "src"}, &folder)
	if code != http.StatusOK {
		t.Fatal("folder add returned", code)
	}
	var list FolderListResponse
	tester.getJSON(t, "/folders", &list)
	if len(list.Folders) != 1 {
		t.Fatal("folder list mismatch")
	}

	// Adding a bogus path is a 4xx/5xx, not a success.
	if code := tester.postJSON(t, "/folders", folderAddRequest{Path: filepath.Join(tester.dir, "missing")}, nil); code == http.StatusOK {
		t.Fatal("bogus folder add succeeded")
	}

	// Publish as public.
	var published SharePublishResponse
	code = tester.postJSON(t, "/shares/publish", sharePublishRequest{
		FolderID:    folder.ID,
		AccessClass: "public",
	}, &published)
	if code != http.StatusOK {
		t.Fatal("publish returned", code)
	}
	if published.ShareString == "" {
		t.Fatal("publish returned no share string")
	}

	// Download through the API.
	dest := filepath.Join(tester.dir, "restored")
	var outcome modules.DownloadOutcome
	code = tester.postJSON(t, "/downloads", downloadRequest{
		ShareString: published.ShareString,
		Destination: dest,
	}, &outcome)
	if code != http.StatusOK {
		t.Fatal("download returned", code)
	}
	if !outcome.Complete() {
		t.Fatal("download incomplete over http")
	}
	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(data) != "over http" {
		t.Fatal("restored bytes mismatch:", err)
	}

	// Queue stats respond.
	var queues QueueResponse
	tester.getJSON(t, "/queues", &queues)
	if queues.Upload.Completed == 0 {
		t.Fatal("upload queue stats empty after publish")
	}

	// A private publish with no users maps to 400.
	if code := tester.postJSON(t, "/shares/publish", sharePublishRequest{
		FolderID:    folder.ID,
		AccessClass: "private",
	}, nil); code != http.StatusBadRequest {
		t.Fatal("expected 400 for private publish without users, got", code)
	}

	// A download with a malformed share string maps to 400.
	if code := tester.postJSON(t, "/downloads", downloadRequest{
		ShareString: "garbage",
		Destination: dest,
	}, nil); code != http.StatusBadRequest {
		t.Fatal("expected 400 for malformed share string, got", code)
	}
}
