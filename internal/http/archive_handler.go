package httpx

import (
	"archive/zip"
	"fmt"
	"net/http"
	"sort"

	"github.com/harshhgithub/CodeSync/internal/room"
)

type RoomsAPI struct{ Co *room.Coordinator }

// Archive streams a zip of every file in the room at this instant.
// Unknown room -> 404.
func (a *RoomsAPI) Archive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	files, ok := a.Co.SnapshotFiles(id)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	// Deterministic entry order
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))

	zw := zip.NewWriter(w)
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			return
		}
		if _, err := f.Write([]byte(files[name])); err != nil {
			return
		}
	}
	_ = zw.Close()
}
