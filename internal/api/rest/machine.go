package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/machine/status
func (s *Server) getMachineStatus(c *gin.Context) {
	status := s.lm.MachineController().GetStatus()
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/machine/sequences/:name
func (s *Server) getSequence(c *gin.Context) {
	name := c.Param("name")

	snap, ok := s.lm.MachineController().Sequence(name)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCode("sequence", http.StatusNotFound), "Sequence not found", gin.H{
			"name":      name,
			"available": []string{action.BlendSequenceName, action.CleanSequenceName},
		}))
		return
	}

	c.JSON(http.StatusOK, snap)
}
