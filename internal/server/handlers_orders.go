package server

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/gin-gonic/gin"
)

const skipInvalidStageID = "invalid_stage_id"

func (h *httpHandler) handleListAdminOrders(c *gin.Context) {
	list, err := h.orders.ListForAdmin(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newOrderPayloads(list))
}

func (h *httpHandler) handleListClientOrders(c *gin.Context) {
	list, err := h.orders.ListForClient(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newOrderPayloads(list))
}

func (h *httpHandler) handleCreateOrder(c *gin.Context) {
	var request orderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, "orders.create.invalid_request", "malformed order payload")
		return
	}
	order, err := h.orders.Create(c.Request.Context(), identityFrom(c), request.fields())
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, newOrderPayload(order))
}

func (h *httpHandler) handleGetOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	detail, err := h.orders.Get(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newOrderDetailPayload(detail))
}

// handleUpdateOrder saves the order fields and, when present, the submitted stage set.
// Stage ids that belong to another order are skipped and reported.
func (h *httpHandler) handleUpdateOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	var request orderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, "orders.update.invalid_request", "malformed order payload")
		return
	}
	caller := identityFrom(c)
	ctx := c.Request.Context()
	if _, err := h.orders.Update(ctx, caller, id, request.fields()); err != nil {
		h.respondFailure(c, err)
		return
	}
	skipped := []skippedPayload{}
	if len(request.Stages) > 0 {
		changes, rejected := stageChangesFrom(request.Stages)
		skipped = append(skipped, rejected...)
		result, err := h.orders.ApplyBulkForOrder(ctx, caller, id, changes)
		if err != nil {
			h.respondFailure(c, err)
			return
		}
		skipped = appendSkipped(skipped, result.Skipped)
	}
	detail, err := h.orders.Get(ctx, caller, id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, orderSavePayload{
		orderDetailPayload: newOrderDetailPayload(detail),
		Skipped:            skipped,
	})
}

func (h *httpHandler) handleDeleteOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), identityFrom(c), id); err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": id})
}

func (h *httpHandler) handleBulkStages(c *gin.Context) {
	var request bulkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.invalidRequest(c, "orders.apply_bulk.invalid_request", "malformed stage payload")
		return
	}
	changes, rejected := stageChangesFrom(request.Stages)
	result, err := h.orders.ApplyBulk(c.Request.Context(), identityFrom(c), changes)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	payload := bulkResultPayload{
		UpdatedCount: result.UpdatedCount,
		OrderIDs:     result.OrderIDs,
		Skipped:      appendSkipped(rejected, result.Skipped),
	}
	if payload.OrderIDs == nil {
		payload.OrderIDs = []uint{}
	}
	respondSuccess(c, http.StatusOK, payload)
}

func appendSkipped(dst []skippedPayload, skipped []orders.SkippedStage) []skippedPayload {
	for _, entry := range skipped {
		dst = append(dst, skippedPayload{
			Stage:  strconv.FormatUint(uint64(entry.StageID), 10),
			Reason: entry.Reason,
		})
	}
	return dst
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	results, err := h.orders.Search(c.Request.Context(), identityFrom(c), c.Query("q"))
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newSearchHitPayloads(results))
}

func (h *httpHandler) orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.invalidRequest(c, "orders.invalid_id", "missing order")
		return 0, false
	}
	return uint(id), true
}

// stageChangesFrom converts submitted stage entries keyed by id. Keys that are not
// positive integers are returned as skipped entries.
func stageChangesFrom(submitted map[string]stageChangePayload) (orders.StageChanges, []skippedPayload) {
	changes := make(orders.StageChanges, len(submitted))
	rejected := []skippedPayload{}
	for key, entry := range submitted {
		stageID, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil || stageID == 0 {
			rejected = append(rejected, skippedPayload{Stage: key, Reason: skipInvalidStageID})
			continue
		}
		changes[uint(stageID)] = orders.StageChange{
			Status:  entry.Status,
			Date:    entry.Date,
			Remarks: entry.Remarks,
		}
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].Stage < rejected[j].Stage })
	return changes, rejected
}
