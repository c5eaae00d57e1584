// Package docs holds the swagger description served under /swagger/.
// Keep in sync with the @ annotations in internal/web/handlers.go (swag init -g internal/web/server.go).
package docs

import "github.com/swaggo/swag"

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
        "/api/waves": {
            "get": {
                "description": "Recent waves (most recent first), event total, contract total and send state",
                "produces": ["application/json"],
                "tags": ["waves"],
                "summary": "List waves",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/portal.State"}}
                }
            },
            "post": {
                "description": "Signs wave(message) with the caller's custodial wallet and starts waiting for confirmation",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["waves"],
                "summary": "Send a wave",
                "parameters": [
                    {"description": "Message and PIN", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/web.SendWaveRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/writer.TxHandle"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/web.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/web.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/web.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/web.ErrorResponse"}}
                }
            }
        },
        "/api/refresh": {
            "post": {
                "description": "Runs a read round now, shared with any round already in flight",
                "produces": ["application/json"],
                "tags": ["waves"],
                "summary": "Refresh waves",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/portal.State"}}
                }
            }
        },
        "/api/tx/{hash}": {
            "get": {
                "description": "Confirmation state of a transaction sent through this server",
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Transaction status",
                "parameters": [
                    {"type": "string", "description": "Transaction hash", "name": "hash", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/poller.Result"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/web.ErrorResponse"}}
                }
            }
        },
        "/api/celebrate/{hash}.png": {
            "get": {
                "description": "Confetti card with the wave message and a QR code to the explorer",
                "produces": ["image/png"],
                "tags": ["transactions"],
                "summary": "Celebration card",
                "parameters": [
                    {"type": "string", "description": "Transaction hash", "name": "hash", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "PNG image"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/web.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "waves.Wave": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "txHash": {"type": "string"},
                "blockNumber": {"type": "integer"},
                "valid": {"type": "boolean"}
            }
        },
        "portal.PendingTx": {
            "type": "object",
            "properties": {
                "hash": {"type": "string"},
                "message": {"type": "string"},
                "strategy": {"type": "string"},
                "submittedAt": {"type": "string"}
            }
        },
        "portal.State": {
            "type": "object",
            "properties": {
                "waves": {"type": "array", "items": {"$ref": "#/definitions/waves.Wave"}},
                "eventTotal": {"type": "integer"},
                "contractTotal": {"type": "string"},
                "contractTotalError": {"type": "string"},
                "stale": {"type": "boolean"},
                "lastError": {"type": "string"},
                "updatedAt": {"type": "string"},
                "refreshing": {"type": "boolean"},
                "sending": {"type": "boolean"},
                "pending": {"type": "array", "items": {"$ref": "#/definitions/portal.PendingTx"}},
                "lastOutcome": {"$ref": "#/definitions/poller.Result"},
                "lastSendError": {"type": "string"},
                "celebrating": {"type": "boolean"},
                "celebrationHash": {"type": "string"},
                "celebrationUntil": {"type": "string"}
            }
        },
        "poller.Result": {
            "type": "object",
            "properties": {
                "tx_hash": {"type": "string"},
                "outcome": {"type": "string", "enum": ["pending", "confirmed", "abandoned", "cancelled"]},
                "attempts": {"type": "integer"},
                "last_error": {"type": "string"},
                "elapsed": {"type": "integer"}
            }
        },
        "writer.TxHandle": {
            "type": "object",
            "properties": {
                "hash": {"type": "string"},
                "strategy": {"type": "string"},
                "submitted_at": {"type": "string"}
            }
        },
        "web.SendWaveRequest": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "pin": {"type": "string"}
            }
        },
        "web.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Wave Portal API",
	Description:      "Send and read wave messages on the Starknet wave portal contract.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
