package handler

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"meb-console/internal/ledger"
	"meb-console/internal/middleware"
	"meb-console/internal/model"
	"meb-console/internal/recorder"
)

type DatasetHandler struct {
	Recorder *recorder.Recorder
	Ledger   *ledger.Ledger
	LogDir   string
}

// audit logs which operator drove a state change. RequireAuth guarantees the
// claim is present on these routes.
func audit(c *gin.Context, action, detail string) {
	operatorID, _ := middleware.OperatorIDFromContext(c)
	if detail != "" {
		log.Printf("dataset: %s %s by operator %s", action, detail, operatorID)
		return
	}
	log.Printf("dataset: %s by operator %s", action, operatorID)
}

func (h *DatasetHandler) Start(c *gin.Context) {
	if !h.Recorder.Start() {
		c.JSON(http.StatusConflict, gin.H{"error": "Recording already in progress"})
		return
	}
	audit(c, "start", "")
	c.JSON(http.StatusOK, gin.H{"success": true, "status": h.Recorder.Status()})
}

func (h *DatasetHandler) Stop(c *gin.Context) {
	if !h.Recorder.Stop() {
		c.JSON(http.StatusConflict, gin.H{"error": "No recording in progress"})
		return
	}
	audit(c, "stop", "")
	c.JSON(http.StatusOK, gin.H{"success": true, "status": h.Recorder.Status()})
}

func (h *DatasetHandler) Restart(c *gin.Context) {
	if !h.Recorder.Restart() {
		c.JSON(http.StatusConflict, gin.H{"error": "Could not restart recording"})
		return
	}
	audit(c, "restart", "")
	c.JSON(http.StatusOK, gin.H{"success": true, "status": h.Recorder.Status()})
}

func (h *DatasetHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Recorder.Status())
}

// Files lists finalized logs: on-disk files that also hold a ledger entry.
// Orphans on either side stay invisible.
func (h *DatasetHandler) Files(c *gin.Context) {
	entries, err := os.ReadDir(h.LogDir)
	if err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot read log directory"})
		return
	}

	known := h.Ledger.Names()
	files := make([]model.FileInfo, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		if _, ok := known[entry.Name()]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, model.FileInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// Delete removes a finalized log from disk. The ledger entry stays; listing
// intersects both sides, so a missing file simply disappears from results.
func (h *DatasetHandler) Delete(c *gin.Context) {
	name := filepath.Base(c.Param("name"))
	if name == "." || name == "/" || !strings.HasSuffix(name, ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
		return
	}
	if _, ok := h.Ledger.Find(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err := os.Remove(filepath.Join(h.LogDir, name)); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot delete file"})
		return
	}
	audit(c, "delete", name)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
