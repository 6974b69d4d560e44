package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "GradeForge API",
        "description": "BTEC coursework generation platform",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login, token refresh, session management"},
        {"name": "Briefs", "description": "Assignment brief catalogue"},
        {"name": "Assignments", "description": "Assignment lifecycle and generation"},
        {"name": "Tokens", "description": "Token balance and ledger"},
        {"name": "Payments", "description": "Manual bank-transfer plan purchases"},
        {"name": "Admin", "description": "Administrative operations"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/briefs": {
            "get": {
                "tags": ["Briefs"],
                "summary": "List available briefs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Create a draft assignment from a brief",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAssignmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/inputs": {
            "put": {
                "tags": ["Assignments"],
                "summary": "Save student inputs for a draft assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Assignment is not editable"}
                }
            }
        },
        "/assignments/{id}/generate": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Start generation for a draft assignment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Generation started"},
                    "402": {"description": "Insufficient tokens"},
                    "409": {"description": "Invalid state"},
                    "412": {"description": "Required inputs incomplete"}
                }
            }
        },
        "/assignments/{id}/export": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Export a completed assignment as PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Signed download link"},
                    "409": {"description": "Assignment not completed"}
                }
            }
        },
        "/generation/status/{assignmentId}": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Poll generation job status",
                "parameters": [
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ws/progress": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Websocket stream of generation progress events",
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "description": "Access token for browser websocket clients"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols"}
                }
            }
        },
        "/tokens/balance": {
            "get": {
                "tags": ["Tokens"],
                "summary": "Current token balance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments": {
            "post": {
                "tags": ["Payments"],
                "summary": "Create a pending plan purchase",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateAssignmentRequest": {
            "type": "object",
            "required": ["briefId", "targetGrade"],
            "properties": {
                "briefId": {"type": "string"},
                "targetGrade": {"type": "string", "enum": ["PASS", "MERIT", "DISTINCTION"]},
                "language": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
