package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/services"
	"github.com/examcell/smartboard/pkg/response"
)

// HierarchyHandler walks the branch, year and section tree.
type HierarchyHandler struct {
	students *services.StudentService
	domain   string
}

// NewHierarchyHandler constructs a HierarchyHandler. domain feeds the derived
// institutional_email of listed students.
func NewHierarchyHandler(students *services.StudentService, domain string) *HierarchyHandler {
	return &HierarchyHandler{students: students, domain: domain}
}

// GET /api/branches
func (h *HierarchyHandler) Branches(c *gin.Context) {
	branches, err := h.students.Branches(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, branches)
}

// GET /api/branches/:branch/years
func (h *HierarchyHandler) Years(c *gin.Context) {
	years, err := h.students.Years(requestContext(c), c.Param("branch"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, years)
}

// GET /api/branches/:branch/years/:year/sections
func (h *HierarchyHandler) Sections(c *gin.Context) {
	sections, err := h.students.Sections(requestContext(c), c.Param("branch"), c.Param("year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, sections)
}

// GET /api/branches/:branch/years/:year/students
func (h *HierarchyHandler) Students(c *gin.Context) {
	students, err := h.students.ClassStudents(requestContext(c), c.Param("branch"), c.Param("year"), c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, studentViews(students, h.domain))
}
