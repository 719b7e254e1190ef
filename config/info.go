package config

const (
	ServiceName    = "ssi-vc-service"
	ServiceVersion = "0.1.0"
	APIVersion     = "v1"
)

// ServiceInfo is the static description of this build, reported on startup and by the health check.
type ServiceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	APIVersion  string `json:"apiVersion"`
}

var info = ServiceInfo{
	Name: ServiceName,
	Description: "The SSI VC Service issues verifiable credentials to holders who prove control of their DID," +
		" and verifies full credentials and selective disclosure presentations.",
	Version:    ServiceVersion,
	APIVersion: APIVersion,
}

// Info returns a copy of the service info.
func Info() ServiceInfo {
	return info
}

func Name() string {
	return info.Name
}

func Description() string {
	return info.Description
}

func Version() string {
	return info.Version
}
