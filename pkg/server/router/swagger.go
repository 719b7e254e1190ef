package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var swaggerHandler = ginSwagger.WrapHandler(swaggerFiles.Handler,
	ginSwagger.DocExpansion("list"),
	ginSwagger.DefaultModelsExpandDepth(-1))

// Swagger serves the generated API docs with models collapsed, so the request and verification routes are
// listed first.
func Swagger(c *gin.Context) {
	swaggerHandler(c)
}
