package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

type GetReadinessResponse struct {
	Status          svcframework.Status                       `json:"status"`
	ServiceStatuses map[svcframework.Type]svcframework.Status `json:"serviceStatuses"`
}

// Readiness godoc
//
//	@Summary		Readiness
//	@Description	Readiness runs a number of application specific checks to see if all the relied upon services are
//	@Description	healthy.
//	@Tags			Readiness
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	GetReadinessResponse
//	@Failure		503	{object}	GetReadinessResponse
//	@Router			/readiness [get]
func Readiness(services []svcframework.Service) gin.HandlerFunc {
	return readiness{getter: servicesToGet{services}}.ready
}

type readiness struct {
	getter serviceGetter
}

// ready reports each service's status and answers 503 unless all of them are ready.
func (r readiness) ready(c *gin.Context) {
	services := r.getter.getServices()
	numServices := len(services)
	readyServices := 0
	statuses := make(map[svcframework.Type]svcframework.Status)
	for _, s := range services {
		status := s.Status()
		statuses[s.Type()] = status
		if status.IsReady() {
			readyServices++
		}
	}

	statusCode := http.StatusOK
	status := svcframework.Status{
		Status:  svcframework.StatusReady,
		Message: "all services ready",
	}
	if readyServices < numServices {
		statusCode = http.StatusServiceUnavailable
		status = svcframework.Status{
			Status:  svcframework.StatusNotReady,
			Message: fmt.Sprintf("out of [%d] services, [%d] are ready", numServices, readyServices),
		}
	}
	response := GetReadinessResponse{
		Status:          status,
		ServiceStatuses: statuses,
	}
	framework.Respond(c, response, statusCode)
}

// serviceGetter is a dependency of this readiness handler to know which services are available in the server
type serviceGetter interface {
	getServices() []svcframework.Service
}

type servicesToGet struct {
	services []svcframework.Service
}

func (s servicesToGet) getServices() []svcframework.Service {
	return s.services
}
