package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo holds the exported status API document.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "voiced status API",
	Description:      "Bootstrap report, liveness, readiness and metrics of the voiced controller.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the API document at /swagger/doc.json and the UI
// under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Controller liveness",
                "responses": {
                    "200": {"description": "ok", "schema": {"type": "string"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Readiness of the launched service",
                "description": "200 once the service health endpoint answers 2xx, 503 otherwise.",
                "responses": {
                    "200": {"description": "ready", "schema": {"type": "string"}},
                    "503": {"description": "starting", "schema": {"type": "string"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Bootstrap report",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["metrics"],
                "summary": "Prometheus metrics",
                "responses": {
                    "200": {"description": "exposition format", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 503},
                "error": {"type": "string", "example": "upstream health check failed"}
            }
        },
        "types.GPUInfo": {
            "type": "object",
            "properties": {
                "index": {"type": "integer", "example": 0},
                "name": {"type": "string", "example": "NVIDIA A10G"},
                "memory_mb": {"type": "integer", "example": 23028}
            }
        },
        "types.DeviceStatus": {
            "type": "object",
            "properties": {
                "device": {"type": "string", "example": "accelerated"},
                "runtime": {"type": "string", "example": "cuda"},
                "source": {"type": "string", "example": "probe"},
                "reason": {"type": "string", "example": "1 responsive accelerator(s)"},
                "gpus": {"type": "array", "items": {"$ref": "#/definitions/types.GPUInfo"}}
            }
        },
        "types.MemoryStatus": {
            "type": "object",
            "properties": {
                "known": {"type": "boolean"},
                "total_gb": {"type": "number", "example": 15.5},
                "threshold_gb": {"type": "number", "example": 4},
                "sufficient": {"type": "boolean"}
            }
        },
        "types.WarmupStatus": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "success"},
                "reason": {"type": "string"},
                "duration_ms": {"type": "integer", "example": 41250}
            }
        },
        "types.EventStatus": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "stage_done"},
                "stage": {"type": "string", "example": "detect_device"},
                "fields": {"type": "object", "additionalProperties": true}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string", "example": "3f0c3a52-6b0e-4d39-9d3f-8a2b5e0d7c11"},
                "stage": {"type": "string", "example": "launch"},
                "error": {"type": "string"},
                "device": {"$ref": "#/definitions/types.DeviceStatus"},
                "memory": {"$ref": "#/definitions/types.MemoryStatus"},
                "warmup": {"$ref": "#/definitions/types.WarmupStatus"},
                "stage_durations_ms": {"type": "object", "additionalProperties": {"type": "integer"}},
                "service_pid": {"type": "integer", "example": 42},
                "service_exit_code": {"type": "integer"},
                "events": {"type": "array", "items": {"$ref": "#/definitions/types.EventStatus"}},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "server_time_unix": {"type": "integer", "example": 1700000000}
            }
        }
    }
}`
