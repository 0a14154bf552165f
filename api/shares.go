package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/contemptx/usenetsync-sub004/modules"
	"github.com/contemptx/usenetsync-sub004/types"
)

// ShareListResponse is the response of GET /shares.
type ShareListResponse struct {
	Shares []types.Share `json:"shares"`
}

// shareListHandler lists published shares.
func (api *API) shareListHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	shares, err := api.syncer.Shares()
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, ShareListResponse{Shares: shares})
}

// sharePublishRequest is the body of POST /shares/publish.
type sharePublishRequest struct {
	FolderID    string `json:"folderid"`
	AccessClass string `json:"accessclass"`
	Users       string `json:"users"` // comma separated
	Password    string `json:"password"`
	Redundancy  *int   `json:"redundancy"`
}

// SharePublishResponse is the response of POST /shares/publish.
type SharePublishResponse struct {
	ShareString string `json:"sharestring"`
}

// sharePublishHandler runs the publish pipeline for one folder.
func (api *API) sharePublishHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body sharePublishRequest
	if err := decodeBody(req, &body); err != nil {
		WriteError(w, Error{"unable to decode request: " + err.Error()}, http.StatusBadRequest)
		return
	}
	var folderID types.FolderID
	if err := folderID.LoadString(body.FolderID); err != nil {
		WriteError(w, Error{"invalid folder id"}, http.StatusBadRequest)
		return
	}
	opts := modules.PublishOptions{
		AccessClass: types.AccessClass(body.AccessClass),
		Users:       splitList(body.Users),
		Password:    body.Password,
		Redundancy:  -1,
	}
	if opts.AccessClass == "" {
		opts.AccessClass = types.SharePublic
	}
	if body.Redundancy != nil {
		opts.Redundancy = *body.Redundancy
	}

	shareString, err := api.syncer.Publish(folderID, opts)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, SharePublishResponse{ShareString: shareString})
}
