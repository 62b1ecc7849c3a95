package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"itemcore/internal/blob"
)

func (s *server) enqueueExport(c *gin.Context) {
	id, ok := itemIDParam(c, "id")
	if !ok {
		return
	}
	job, err := s.exports.Enqueue(id, c.GetHeader("X-Requested-By"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Location", "/exports/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (s *server) getExport(c *gin.Context) {
	job, ok := s.exports.Get(c.Param("job"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "export job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *server) listExports(c *gin.Context) {
	id, ok := itemIDParam(c, "id")
	if !ok {
		return
	}
	infos, err := s.archive.List(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if infos == nil {
		infos = []blob.Info{}
	}
	c.JSON(http.StatusOK, gin.H{"item_id": id, "exports": infos})
}
