package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Health reports that the process is up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the ledger is reachable.
func (h *Handler) Ready(c *gin.Context) {
	props, err := h.facilitator.Ready(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Ledger not reachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"headBlockNumber": props.HeadBlockNumber,
	})
}

// SupportedNetworks lists the networks this facilitator settles on.
func (h *Handler) SupportedNetworks(c *gin.Context) {
	c.JSON(http.StatusOK, types.SupportedNetworksResponse{
		Networks: []types.Network{types.NetworkHiveMainnet},
	})
}
