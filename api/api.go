// Package api exposes the syncer over HTTP. The surface is small: folders,
// shares, downloads, queues, and the daemon version. Handlers translate the
// error taxonomy into status codes; per-file download problems are part of
// the outcome body, never an error status.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/contemptx/usenetsync-sub004/build"
	"github.com/contemptx/usenetsync-sub004/modules"
)

// Error is the JSON shape of an API error response.
type Error struct {
	// Message describes the error in English. Typically it is set to
	// `err.Error()`.
	Message string `json:"message"`
}

// Error implements the error interface for the Error type. It returns only
// the Message field.
func (err Error) Error() string {
	return err.Message
}

// API wraps the syncer with HTTP handlers.
type API struct {
	syncer     modules.Syncer
	uploader   modules.Uploader
	downloader modules.Downloader

	router http.Handler
}

// New builds the router over the given modules.
func New(syncer modules.Syncer, uploader modules.Uploader, downloader modules.Downloader) *API {
	api := &API{
		syncer:     syncer,
		uploader:   uploader,
		downloader: downloader,
	}

	router := httprouter.New()
	router.GET("/daemon/version", api.daemonVersionHandler)
	router.GET("/folders", api.folderListHandler)
	router.POST("/folders", api.folderAddHandler)
	router.GET("/shares", api.shareListHandler)
	router.POST("/shares/publish", api.sharePublishHandler)
	router.POST("/downloads", api.downloadHandler)
	router.GET("/queues", api.queueHandler)
	api.router = router
	return api
}

// ServeHTTP implements http.Handler.
func (api *API) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	api.router.ServeHTTP(w, req)
}

// WriteError writes an error to the API caller with the given status code.
func WriteError(w http.ResponseWriter, err Error, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(err)
}

// WriteJSON writes the object to the ResponseWriter. If the encoding fails,
// an error is written instead.
func WriteJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(obj)
}

// WriteSuccess writes the success json object ({"success":true}) to the
// ResponseWriter.
func WriteSuccess(w http.ResponseWriter) {
	WriteJSON(w, struct {
		Success bool `json:"success"`
	}{true})
}

// errorCode maps a taxonomy error to an HTTP status code.
func errorCode(err error) int {
	switch {
	case modules.IsNotFound(err):
		return http.StatusNotFound
	case modules.IsAccessDenied(err):
		return http.StatusForbidden
	case modules.IsInvalidFormat(err):
		return http.StatusBadRequest
	case modules.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeTaxonomyError writes an error using its taxonomy status code.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	WriteError(w, Error{err.Error()}, errorCode(err))
}

// DaemonVersion is the response of /daemon/version. GitRevision and
// BuildTime are empty for builds that did not go through the Makefile.
type DaemonVersion struct {
	Version     string `json:"version"`
	GitRevision string `json:"gitrevision"`
	BuildTime   string `json:"buildtime"`
}

// daemonVersionHandler handles the API call that requests the daemon's
// version.
func (api *API) daemonVersionHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	WriteJSON(w, DaemonVersion{Version: build.Version, GitRevision: build.GitRevision, BuildTime: build.BuildTime})
}

// decodeBody decodes a JSON request body, bounding its size.
func decodeBody(req *http.Request, obj interface{}) error {
	return json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(obj)
}

// splitList splits a comma separated list, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, elem := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(elem); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
