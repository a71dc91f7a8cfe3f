// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, authCfg middleware.AuthConfig) {
	// 订单管理
	orders := v1.Group("/orders")
	{
		orders.POST("", h.Order.CreateOrder)
		orders.GET("/:id", h.Order.GetOrder)
		orders.GET("/:id/progress", h.Order.GetProgress)

		// 产物下载
		orders.GET("/:id/tex", h.Order.DownloadTex)
		orders.GET("/:id/pdf", h.Order.DownloadPDF)
		orders.GET("/:id/docx", h.Order.DownloadDocx)
	}

	// 用户订单
	users := v1.Group("/users")
	{
		users.GET("/:uid/orders", h.Order.ListUserOrders)
	}

	// 工作计划校验
	plans := v1.Group("/plans")
	{
		plans.POST("/validate", h.Plan.ValidatePlan)
	}

	// 计价与示例
	v1.GET("/price", h.Price.GetPrice)
	v1.GET("/samples", h.Samples.GetSamples)

	// 管理端：登录开放，其余接口要求 admin 角色
	admin := v1.Group("/admin")
	{
		admin.POST("/login", h.Admin.Login)

		protected := admin.Group("")
		protected.Use(middleware.Auth(authCfg))
		protected.Use(middleware.RequireRole("admin"))
		{
			protected.GET("/orders", h.Admin.ListOrders)
			protected.POST("/orders/:id/requeue", h.Admin.RequeueOrder)
			protected.GET("/stats", h.Admin.Stats)
		}
	}
}
