package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/contemptx/usenetsync-sub004/crypto"
	"github.com/contemptx/usenetsync-sub004/modules"
)

// downloadRequest is the body of POST /downloads. UserID and FolderRoot
// authorize private shares; Password authorizes protected ones.
type downloadRequest struct {
	ShareString string `json:"sharestring"`
	Destination string `json:"destination"`
	UserID      string `json:"userid"`
	FolderRoot  string `json:"folderroot"` // hex
	Password    string `json:"password"`
}

// downloadHandler consumes a share into a destination directory. The
// response is the structured outcome; incomplete files are a body-level
// status, not an HTTP failure.
func (api *API) downloadHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body downloadRequest
	if err := decodeBody(req, &body); err != nil {
		WriteError(w, Error{"unable to decode request: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if body.ShareString == "" || body.Destination == "" {
		WriteError(w, Error{"sharestring and destination are required"}, http.StatusBadRequest)
		return
	}

	creds := modules.Credentials{
		UserID:   body.UserID,
		Password: body.Password,
	}
	if body.FolderRoot != "" {
		var rootHash crypto.Hash
		if err := rootHash.LoadString(body.FolderRoot); err != nil {
			WriteError(w, Error{"invalid folder root"}, http.StatusBadRequest)
			return
		}
		creds.FolderRoot = crypto.SessionKey(rootHash)
		creds.HasRoot = true
	}

	outcome, err := api.syncer.Consume(body.ShareString, body.Destination, creds)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, outcome)
}

// QueueResponse is the response of GET /queues.
type QueueResponse struct {
	Upload   modules.QueueStats `json:"upload"`
	Download modules.QueueStats `json:"download"`
}

// queueHandler reports the occupancy of both queues.
func (api *API) queueHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	upload, err := api.uploader.Stats()
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	download, err := api.downloader.Stats()
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, QueueResponse{Upload: upload, Download: download})
}
