package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/contemptx/usenetsync-sub004/types"
)

// FolderListResponse is the response of GET /folders.
type FolderListResponse struct {
	Folders []types.Folder `json:"folders"`
}

// folderListHandler lists the registered folders.
func (api *API) folderListHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	folders, err := api.syncer.Folders()
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, FolderListResponse{Folders: folders})
}

// folderAddRequest is the body of POST /folders.
type folderAddRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// folderAddHandler registers a new folder.
func (api *API) folderAddHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body folderAddRequest
	if err := decodeBody(req, &body); err != nil {
		WriteError(w, Error{"unable to decode request: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if body.Path == "" {
		WriteError(w, Error{"path is required"}, http.StatusBadRequest)
		return
	}
	folder, err := api.syncer.AddFolder(body.Path, body.Name)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	WriteJSON(w, folder)
}
