package api

import (
	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/handlers"
)

type studentRouteDeps struct {
	Students  *handlers.StudentsHandler
	Hierarchy *handlers.HierarchyHandler
}

func registerStudentRoutes(api *gin.RouterGroup, deps studentRouteDeps) {
	students := api.Group("/students")
	{
		students.GET("", deps.Students.List)
		students.POST("", deps.Students.Create)
		students.GET("/statistics", deps.Students.Statistics)
		students.POST("/upload", deps.Students.Upload)
		students.POST("/upload-rooms", deps.Students.UploadRooms)
		students.POST("/send-bulk-emails", deps.Students.SendBulkEmails)
		students.POST("/send-pending-emails", deps.Students.SendPendingEmails)
		students.POST("/test-email", deps.Students.TestEmail)
		students.GET("/:id", deps.Students.Get)
		students.PUT("/:id", deps.Students.Update)
		students.DELETE("/:id", deps.Students.Delete)
		students.POST("/:id/send-email", deps.Students.SendEmail)
	}

	branches := api.Group("/branches")
	{
		branches.GET("", deps.Hierarchy.Branches)
		branches.GET("/:branch/years", deps.Hierarchy.Years)
		branches.GET("/:branch/years/:year/sections", deps.Hierarchy.Sections)
		branches.GET("/:branch/years/:year/students", deps.Hierarchy.Students)
	}
}
