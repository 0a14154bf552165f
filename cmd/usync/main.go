// usync is the command line client for the UsenetSync daemon. It speaks to
// the daemon's HTTP API; it holds no state of its own.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/contemptx/usenetsync-sub004/api"
	"github.com/contemptx/usenetsync-sub004/build"
)

var (
	// Flags.
	addr            string // override default API address
	accessClass     string // access class for publish
	shareUsers      string // comma separated recipient user ids
	sharePassword   string // password for protected shares
	shareRedundancy int    // replicas per segment
	downloadUserID  string // user id for private downloads
	downloadRoot    string // hex folder root for private downloads
)

// Exit codes.
// inspired by sysexits.h
const (
	exitCodeGeneral = 1  // Not in sysexits.h, but is standard practice.
	exitCodeUsage   = 64 // EX_USAGE in sysexits.h
)

// non2xx returns true for non-success HTTP status codes.
func non2xx(code int) bool {
	return code < 200 || code > 299
}

// decodeError returns the api.Error from an API response. This method
// should only be called if the response's status code is non-2xx.
func decodeError(resp *http.Response) error {
	var apiErr api.Error
	err := json.NewDecoder(resp.Body).Decode(&apiErr)
	if err != nil {
		return err
	}
	return apiErr
}

// apiGet wraps a GET request with a status code check.
func apiGet(call string) (*http.Response, error) {
	if host, port, _ := net.SplitHostPort(addr); host == "" {
		addr = net.JoinHostPort("localhost", port)
	}
	resp, err := api.HttpGET("http://" + addr + call)
	if err != nil {
		return nil, errors.New("no response from daemon")
	}
	if non2xx(resp.StatusCode) {
		err := decodeError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// apiPost wraps a POST request with a status code check.
func apiPost(call, body string) (*http.Response, error) {
	if host, port, _ := net.SplitHostPort(addr); host == "" {
		addr = net.JoinHostPort("localhost", port)
	}
	resp, err := api.HttpPOST("http://"+addr+call, body)
	if err != nil {
		return nil, errors.New("no response from daemon")
	}
	if non2xx(resp.StatusCode) {
		err := decodeError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// getAPI makes a GET call and decodes the response.
func getAPI(call string, obj interface{}) error {
	resp, err := apiGet(call)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(obj)
}

// postAPI makes a POST call and decodes the response.
func postAPI(call, body string, obj interface{}) error {
	resp, err := apiPost(call, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if obj == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(obj)
}

// die prints its arguments to stderr, then exits the program with the
// default error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versioncmd prints the client and daemon versions.
func versioncmd() {
	fmt.Println("UsenetSync Client")
	fmt.Println("\tVersion " + build.Version)
	if build.GitRevision != "" {
		fmt.Println("\tGit Revision " + build.GitRevision)
		fmt.Println("\tBuild Time " + build.BuildTime)
	}
	var dvg api.DaemonVersion
	if err := getAPI("/daemon/version", &dvg); err != nil {
		fmt.Println("Could not get daemon version:", err)
		return
	}
	fmt.Println("UsenetSync Daemon")
	fmt.Println("\tVersion " + dvg.Version)
	if dvg.GitRevision != "" {
		fmt.Println("\tGit Revision " + dvg.GitRevision)
		fmt.Println("\tBuild Time " + dvg.BuildTime)
	}
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "UsenetSync Client v" + build.Version,
		Long:  "UsenetSync Client v" + build.Version,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Usage()
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the client and the daemon",
		Run:   func(*cobra.Command, []string) { versioncmd() },
	})

	root.AddCommand(folderCmd, shareCmd, downloadCmd, queueCmd)
	root.PersistentFlags().StringVarP(&addr, "addr", "a", "localhost:9970", "which host/port to communicate with")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
