package api

import (
	"net/http"
	"strings"
)

// agent is the user-agent of local API clients.
const agent = "UsenetSync-Agent"

// HttpGET is a utility function for making http get requests to the daemon
// with a whitelisted user-agent. A non-2xx response does not return an
// error.
func HttpGET(url string) (resp *http.Response, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", agent)
	return http.DefaultClient.Do(req)
}

// HttpPOST is a utility function for making post requests to the daemon
// with a whitelisted user-agent. A non-2xx response does not return an
// error.
func HttpPOST(url string, data string) (resp *http.Response, err error) {
	req, err := http.NewRequest("POST", url, strings.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}
